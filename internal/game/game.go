// Package game is the turn loop between the local player, the rules engine
// and the session.
package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/duel/internal/protocol"
	"github.com/1ureka/duel/internal/session"
	"github.com/1ureka/duel/internal/util"
)

// Game applies local and remote moves in turn order. Without a session it
// plays both sides locally.
type Game struct {
	rules Rules
	sess  *session.Session

	mu      sync.Mutex
	turn    uint64 // local play only; networked games use the session's counter
	history []protocol.Move
}

// New starts a game. A fresh session counter is moved to 1 so both sides
// agree that the Host opens.
func New(rules Rules, sess *session.Session) *Game {
	if sess != nil && sess.Turn() == 0 {
		sess.SetTurn(1)
	}
	return &Game{rules: rules, sess: sess, turn: 1}
}

// Turn returns the number of the move about to be played, starting at 1.
func (g *Game) Turn() uint64 {
	if g.sess != nil {
		return g.sess.Turn()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turn
}

// LocalTurn reports whether the local player may move now.
func (g *Game) LocalTurn() bool {
	if g.sess == nil {
		return true
	}
	return g.sess.Connected() && g.sess.Phase() == session.WaitingForLocalMove
}

// History returns every applied move in order.
func (g *Game) History() []protocol.Move {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]protocol.Move(nil), g.history...)
}

// Play applies a local move and, in a networked game, sends it to the
// opponent.
func (g *Game) Play(m protocol.Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sess == nil {
		if err := g.rules.Apply(m); err != nil {
			return fmt.Errorf("illegal move %s: %w", m, err)
		}
		g.turn++
		g.history = append(g.history, m)
		return nil
	}

	// The rules see the move only while the session is live and it is our
	// turn, and the move is sent only if the rules accept it.
	err := g.sess.SubmitWith(m, func(m protocol.Move) error {
		if err := g.rules.Apply(m); err != nil {
			return fmt.Errorf("illegal move %s: %w", m, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	g.history = append(g.history, m)
	return nil
}

// Tick applies every move received since the last call and returns them.
// Lines that do not parse, arrive out of turn or are refused by the rules are
// logged and dropped.
func (g *Game) Tick() []protocol.Move {
	if g.sess == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var applied []protocol.Move
	for _, line := range g.sess.ReceiveAll() {
		m, err := protocol.ParseMove(line)
		if err != nil {
			util.LogWarning("dropping malformed line %q: %v", line, err)
			continue
		}
		if g.sess.Phase() != session.WaitingForRemoteMove {
			util.LogWarning("dropping move %s received out of turn", m)
			continue
		}
		if err := g.rules.Apply(m); err != nil {
			util.LogWarning("dropping illegal move %s: %v", m, err)
			continue
		}

		g.sess.MoveApplied()
		g.history = append(g.history, m)
		applied = append(applied, m)
	}
	return applied
}

// WaitRemote blocks until at least one remote move has been applied, the
// session ends or ctx is cancelled.
func (g *Game) WaitRemote(ctx context.Context) ([]protocol.Move, error) {
	if g.sess == nil {
		return nil, session.ErrNotConnected
	}

	for {
		if moves := g.Tick(); len(moves) > 0 {
			return moves, nil
		}

		select {
		case <-g.sess.Incoming():
		case <-g.sess.Done():
			if moves := g.Tick(); len(moves) > 0 {
				return moves, nil
			}
			return nil, g.sess.Err()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
