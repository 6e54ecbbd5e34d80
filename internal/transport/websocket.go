package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketPath is the endpoint both the ws transport and webrtc signaling use.
const WebSocketPath = "/ws"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketListener is the host-side WebSocket server. Only the first
// upgraded client is handed out; later ones are closed with a policy
// violation.
type WebSocketListener struct {
	ln     net.Listener
	srv    *http.Server
	connCh chan *websocket.Conn
	taken  atomic.Bool
}

// ListenWebSocket binds 0.0.0.0:port and starts serving WebSocketPath.
func ListenWebSocket(port int) (*WebSocketListener, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server on %s: %w", addr, err)
	}

	l := &WebSocketListener{
		ln:     ln,
		connCh: make(chan *websocket.Conn, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, l.handleWS)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		_ = l.srv.Serve(ln)
	}()

	return l, nil
}

func (l *WebSocketListener) handleWS(w http.ResponseWriter, r *http.Request) {
	// Claim the slot before the handshake completes so a second client can
	// never overtake the first.
	first := l.taken.CompareAndSwap(false, true)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if first {
			l.taken.Store(false)
		}
		return
	}

	// Only accept the first client.
	if !first {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	l.connCh <- conn
}

// AcceptRaw blocks until the client upgrades or ctx is cancelled and returns
// the raw WebSocket connection. The HTTP server keeps running until Close.
func (l *WebSocketListener) AcceptRaw(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accept implements Listener. The server stops listening once the client
// is handed out.
func (l *WebSocketListener) Accept(ctx context.Context) (Conn, error) {
	ws, err := l.AcceptRaw(ctx)
	if err != nil {
		l.Close()
		return nil, err
	}
	l.Close()
	return NewWebSocketConn(ws), nil
}

func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }

// Close shuts down the listener, preventing new connections. Upgraded
// connections are hijacked and stay open.
func (l *WebSocketListener) Close() error {
	return l.srv.Close()
}

// DialWebSocketRaw dials the given WebSocket URL and returns the connection.
func DialWebSocketRaw(ctx context.Context, rawURL string, timeout time.Duration) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = timeout
	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}

// DialWebSocket makes one outbound WebSocket connection attempt.
func DialWebSocket(ctx context.Context, rawURL string, timeout time.Duration) (Conn, error) {
	ws, err := DialWebSocketRaw(ctx, rawURL, timeout)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(ws), nil
}

// NormalizeWSURL accepts "host:port", "ws://host:port" or "wss://host:port"
// (any path) and returns the canonical endpoint URL.
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "ws"
	if u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, WebSocketPath), nil
}

// ---------------------------------------------------------------------------
// Stream adapter
// ---------------------------------------------------------------------------

// WebSocketConn turns a message-oriented WebSocket into a byte stream. Every
// Write goes out as one text frame; Read concatenates frames.
//
// It deliberately has no SetReadDeadline: gorilla treats any read error,
// timeouts included, as permanent.
type WebSocketConn struct {
	ws *websocket.Conn
	r  io.Reader

	closeOnce sync.Once
}

// NewWebSocketConn wraps an established WebSocket.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				return 0, mapCloseError(err)
			}
			if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}

		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WebSocketConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure frame and closes the socket.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *WebSocketConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *WebSocketConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// mapCloseError reports the peer going away as io.EOF so the worker treats it
// like a TCP half-close.
func mapCloseError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}
