// Package signaling runs the WebSocket offer/answer/candidate exchange that
// sets up a WebRTC DataChannel between Host and Client. Callers receive a
// ready-to-use byte stream; the WebSocket is closed once the channel opens.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duel/internal/transport"
	"github.com/1ureka/duel/internal/util"
	webrtcpkg "github.com/1ureka/duel/internal/webrtc"
)

// ErrPeerFailed reports a peer connection that ended before its
// DataChannel opened.
var ErrPeerFailed = errors.New("peer connection failed before the channel opened")

// Listener is the Host side of the webrtc transport. It serves the signaling
// endpoint and hands out exactly one established Peer.
type Listener struct {
	ws          *transport.WebSocketListener
	stunServers []string
}

// Listen starts the signaling server on 0.0.0.0:port.
func Listen(port int, stunServers []string) (*Listener, error) {
	ws, err := transport.ListenWebSocket(port)
	if err != nil {
		return nil, err
	}
	return &Listener{ws: ws, stunServers: stunServers}, nil
}

// Accept implements transport.Listener.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	peer, err := EstablishAsHost(ctx, l.ws, l.stunServers)
	if err != nil {
		return nil, err
	}
	return peer, nil
}

func (l *Listener) Addr() net.Addr { return l.ws.Addr() }

func (l *Listener) Close() error { return l.ws.Close() }

// EstablishAsHost executes the host-side signaling flow:
//  1. Wait for the client to connect to the signaling endpoint
//  2. Create the Peer
//  3. Send the offer, apply the answer and candidates
//  4. Wait for the DataChannel to open
//  5. Stop the signaling server and close the WS connection
func EstablishAsHost(ctx context.Context, ln *transport.WebSocketListener, stunServers []string) (*webrtcpkg.Peer, error) {
	defer ln.Close()

	wsConn, err := ln.AcceptRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for client: %w", err)
	}
	defer wsConn.Close()
	util.LogDebug("signaling client connected from %s", wsConn.RemoteAddr())

	return negotiate(ctx, wsConn, stunServers, true)
}

// EstablishAsClient executes the client-side signaling flow:
//  1. Connect to the host's signaling endpoint
//  2. Create the Peer
//  3. Answer the host's offer, exchange candidates
//  4. Wait for the DataChannel to open
//  5. Close the WS connection
//
// A positive timeout bounds the whole flow, not just the WS handshake.
func EstablishAsClient(ctx context.Context, wsURL string, timeout time.Duration, stunServers []string) (*webrtcpkg.Peer, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wsConn, err := transport.DialWebSocketRaw(ctx, wsURL, timeout)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogDebug("WS connected: %s", wsURL)

	return negotiate(ctx, wsConn, stunServers, false)
}

func negotiate(ctx context.Context, wsConn *websocket.Conn, stunServers []string, offer bool) (*webrtcpkg.Peer, error) {
	peer, err := webrtcpkg.NewPeer(stunServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer: %w", err)
	}

	s := &sender{peer: peer, conn: wsConn}
	r := &receiver{peer: peer, conn: wsConn}
	if !offer {
		r.answer = s.sendAnswer
	}

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		if err := s.sendCandidate(string(data)); err != nil {
			util.LogDebug("failed to send ICE candidate: %v", err)
		}
	})

	// Exits when wsConn is closed by the caller's defer.
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			peer.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	if err := awaitOpen(ctx, peer, errCh); err != nil {
		return nil, err
	}
	util.LogDebug("WebRTC DataChannel established, closing WS")
	return peer, nil
}

// pendingPeer is the part of the peer awaitOpen watches.
type pendingPeer interface {
	Ready() <-chan struct{}
	Done() <-chan struct{}
	ConnectionState() webrtc.PeerConnectionState
	Close() error
}

// awaitOpen blocks until the DataChannel opens. The peer is closed on every
// other outcome.
func awaitOpen(ctx context.Context, peer pendingPeer, errCh <-chan error) error {
	select {
	case <-peer.Ready():
		return nil

	case err := <-errCh:
		// The WS may drop right as the channel opens.
		select {
		case <-peer.Ready():
			return nil
		default:
		}
		peer.Close()
		return fmt.Errorf("signaling failed: %w", err)

	case <-peer.Done():
		state := peer.ConnectionState()
		peer.Close()
		return fmt.Errorf("%w (connection %s)", ErrPeerFailed, state)

	case <-ctx.Done():
		peer.Close()
		return ctx.Err()
	}
}
