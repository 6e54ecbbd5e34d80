package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// tcpListener binds a TCP port and hands out a single connection.
type tcpListener struct {
	ln net.Listener

	mu       sync.Mutex
	accepted bool
}

// ListenTCP binds 0.0.0.0:port. Port 0 picks a free port.
func ListenTCP(port int) (Listener, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &tcpListener{ln: ln}, nil
}

// Accept waits for the first inbound connection and then closes the
// listening socket so nobody else can connect.
func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	l.mu.Lock()
	if l.accepted {
		l.mu.Unlock()
		return nil, ErrAlreadyAccepted
	}
	l.accepted = true
	l.mu.Unlock()

	// Close the listener when context is done so Accept() returns an error.
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	conn, err := l.ln.Accept()
	l.ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept error: %w", err)
	}

	return conn, nil
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

func (l *tcpListener) Close() error { return l.ln.Close() }

// DialTCP makes one outbound connection attempt.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return conn, nil
}
