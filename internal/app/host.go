// Package app wires configuration, transports and the session together for
// the Host and Client roles.
package app

import (
	"context"
	"fmt"
	"net"

	"github.com/1ureka/duel/internal/config"
	"github.com/1ureka/duel/internal/session"
	"github.com/1ureka/duel/internal/signaling"
	"github.com/1ureka/duel/internal/transport"
	"github.com/1ureka/duel/internal/util"
)

// StartHost binds the configured transport and accepts exactly one opponent
// in the background. A bind failure is returned to the caller; everything
// after that is reported through sess.
//
// Host lifecycle:
//  1. Bind 0.0.0.0:port (signaling endpoint for webrtc)
//  2. Accept one opponent, then stop listening
//  3. Attach the connection to sess, which sets the turn to 1
func StartHost(ctx context.Context, cfg config.Config, sess *session.Session) (net.Addr, error) {
	ln, err := listen(cfg)
	if err != nil {
		return nil, err
	}

	util.LogInfo("waiting for opponent on %s (%s)", ln.Addr(), cfg.Transport)

	go func() {
		defer ln.Close()

		conn, err := ln.Accept(ctx)
		if err != nil {
			util.LogError("failed to accept opponent: %v", err)
			sess.Fail(fmt.Errorf("accept failed: %w", err))
			return
		}

		if err := sess.Attach(ctx, conn, workerOptions(cfg)); err != nil {
			util.LogError("failed to start session: %v", err)
			return
		}
		util.LogSuccess("opponent connected, you move first")
	}()

	return ln.Addr(), nil
}

func listen(cfg config.Config) (transport.Listener, error) {
	switch cfg.Transport {
	case config.TransportTCP, "":
		return transport.ListenTCP(cfg.Port)
	case config.TransportWS:
		ln, err := transport.ListenWebSocket(cfg.Port)
		if err != nil {
			return nil, err
		}
		return ln, nil
	case config.TransportWebRTC:
		ln, err := signaling.Listen(cfg.Port, cfg.STUNServers)
		if err != nil {
			return nil, err
		}
		return ln, nil
	default:
		return nil, config.ErrInvalidTransport
	}
}

func workerOptions(cfg config.Config) session.WorkerOptions {
	return session.WorkerOptions{
		ReadTimeout:   cfg.ReadTimeout,
		RetryInterval: cfg.RetryInterval,
	}
}
