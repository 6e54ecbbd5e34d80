// Command duel is the CLI entry point.
//
// Two players on different machines take turns over a single connection.
// One runs as Host (binds a port and moves first), the other as Client
// (connects to the Host). Moves are typed as two square indices, e.g.
// "12 28".
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -port, -addr, -transport, -config).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/duel/internal/app"
	"github.com/1ureka/duel/internal/config"
	"github.com/1ureka/duel/internal/game"
	"github.com/1ureka/duel/internal/protocol"
	"github.com/1ureka/duel/internal/session"
	"github.com/1ureka/duel/internal/util"
)

var version = "dev"

var errQuit = errors.New("player quit")

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: host, client or local")
	port := flag.Int("port", config.DefaultPort, "Port to listen on (host only)")
	addr := flag.String("addr", "", "Host address, host:port or ws(s):// URL (client only)")
	transportFlag := flag.String("transport", string(config.TransportTCP), "Transport: tcp, ws or webrtc")
	configPath := flag.String("config", "", "Path to a YAML config file")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = config.Role(*role)
		case "port":
			cfg.Port = *port
		case "addr":
			cfg.Addr = *addr
		case "transport":
			cfg.Transport = config.TransportKind(*transportFlag)
		case "debug":
			cfg.Debug = *debugMode
		}
	})

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Duel — v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		// No role anywhere → interactive mode.
		askConfig(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	switch cfg.Role {
	case config.RoleLocal:
		runLocal(ctx)
	case config.RoleHost:
		runHost(ctx, cfg)
	case config.RoleClient:
		runClient(ctx, cfg)
	}
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runHost binds the port and plays once the opponent has connected.
func runHost(ctx context.Context, cfg config.Config) {
	sess := session.New(config.RoleHost)
	g := game.New(game.Permissive{}, sess)

	addr, err := app.StartHost(ctx, cfg, sess)
	if err != nil {
		util.LogError("failed to start host: %v", err)
		os.Exit(1)
	}
	util.LogInfo("session %s listening on %s", sess.ID(), addr)

	play(ctx, g, sess)
}

// runClient connects to the host and plays once connected.
func runClient(ctx context.Context, cfg config.Config) {
	sess := session.New(config.RoleClient)
	g := game.New(game.Permissive{}, sess)

	app.StartClient(ctx, cfg, sess)
	play(ctx, g, sess)
}

// runLocal plays both sides on this terminal.
func runLocal(ctx context.Context) {
	g := game.New(game.Permissive{}, nil)

	for ctx.Err() == nil {
		m, err := askMove(fmt.Sprintf("Move %d", g.Turn()))
		if err != nil {
			return
		}
		if err := g.Play(m); err != nil {
			util.LogWarning("%v", err)
		}
	}
}

// play alternates between prompting for local moves and waiting for the
// opponent until the session ends.
func play(ctx context.Context, g *game.Game, sess *session.Session) {
	defer sess.Close()

	select {
	case <-sess.Ready():
	case <-sess.Done():
		util.LogError("no game: %v", sess.Err())
		os.Exit(1)
	case <-ctx.Done():
		return
	}

	util.StartStatsReporter(ctx, 30*time.Second)

	for ctx.Err() == nil {
		if g.LocalTurn() {
			m, err := askMove(fmt.Sprintf("Your move (turn %d)", g.Turn()))
			if err != nil {
				return
			}
			if err := g.Play(m); err != nil {
				if errors.Is(err, session.ErrNotConnected) {
					break
				}
				util.LogWarning("%v", err)
			}
			continue
		}

		pterm.Info.Println("Waiting for the opponent...")
		moves, err := g.WaitRemote(ctx)
		if err != nil {
			break
		}
		for _, m := range moves {
			pterm.Success.Println(fmt.Sprintf("Opponent played %s", m))
		}
	}

	if err := sess.Err(); err != nil && !errors.Is(err, session.ErrClosed) {
		util.LogInfo("game over: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askConfig fills the role and its address through interactive prompts.
func askConfig(cfg *config.Config) {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Host   — Wait for an opponent and move first",
			"Client — Connect to a host",
			"Local  — Play both sides here",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(choice, "Host"):
		cfg.Role = config.RoleHost
		cfg.Port = askPort("Port to listen on (0 ~ 65535)")
	case strings.HasPrefix(choice, "Client"):
		cfg.Role = config.RoleClient
		cfg.Addr = askAddr()
	default:
		cfg.Role = config.RoleLocal
	}
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 0 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 0 ~ 65535")
		pterm.Println()
	}
}

// askAddr prompts for the host address until a non-empty one is entered.
func askAddr() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host address (e.g. 192.168.1.20:9000)").
			Show()

		if addr := strings.TrimSpace(raw); addr != "" {
			pterm.Println()
			return addr
		}

		util.LogWarning("invalid input: please enter host:port")
		pterm.Println()
	}
}

// askMove prompts until a well-formed move or "quit" is entered.
func askMove(prompt string) (protocol.Move, error) {
	for {
		raw, err := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt + " — <from> <to>, or quit").
			Show()
		if err != nil {
			return protocol.Move{}, err
		}

		raw = strings.TrimSpace(raw)
		if raw == "quit" || raw == "q" {
			return protocol.Move{}, errQuit
		}

		m, err := protocol.ParseMove(raw)
		if err == nil {
			return m, nil
		}
		util.LogWarning("%v", err)
	}
}
