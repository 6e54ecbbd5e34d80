package app

import (
	"context"
	"fmt"

	"github.com/1ureka/duel/internal/config"
	"github.com/1ureka/duel/internal/session"
	"github.com/1ureka/duel/internal/signaling"
	"github.com/1ureka/duel/internal/transport"
	"github.com/1ureka/duel/internal/util"
)

// StartClient makes a single connection attempt to cfg.Addr in the
// background. On failure the session ends with the dial error; there is no
// retry.
func StartClient(ctx context.Context, cfg config.Config, sess *session.Session) {
	go func() {
		util.LogInfo("connecting to %s (%s)", cfg.Addr, cfg.Transport)

		conn, err := dial(ctx, cfg)
		if err != nil {
			util.LogError("failed to connect: %v", err)
			sess.Fail(fmt.Errorf("connect failed: %w", err))
			return
		}

		if err := sess.Attach(ctx, conn, workerOptions(cfg)); err != nil {
			util.LogError("failed to start session: %v", err)
			return
		}
		util.LogSuccess("connected to host, waiting for the first move")
	}()
}

func dial(ctx context.Context, cfg config.Config) (transport.Conn, error) {
	switch cfg.Transport {
	case config.TransportTCP, "":
		return transport.DialTCP(ctx, cfg.Addr, cfg.DialTimeout)

	case config.TransportWS:
		wsURL, err := transport.NormalizeWSURL(cfg.Addr)
		if err != nil {
			return nil, err
		}
		return transport.DialWebSocket(ctx, wsURL, cfg.DialTimeout)

	case config.TransportWebRTC:
		wsURL, err := transport.NormalizeWSURL(cfg.Addr)
		if err != nil {
			return nil, err
		}
		peer, err := signaling.EstablishAsClient(ctx, wsURL, cfg.DialTimeout, cfg.STUNServers)
		if err != nil {
			return nil, err
		}
		return peer, nil

	default:
		return nil, config.ErrInvalidTransport
	}
}
