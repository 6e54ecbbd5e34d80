// Package transport provides the byte streams a session can run over. Every
// transport delivers bytes reliably and in order; framing into lines is left
// to the session worker.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

var (
	ErrAlreadyAccepted = errors.New("listener already accepted its single connection")
	ErrListenerClosed  = errors.New("listener closed")
)

// Conn is the live connection handle to the opponent.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// ReadDeadliner is implemented by connections whose blocking reads can time out.
type ReadDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Listener accepts exactly one inbound connection over its lifetime.
type Listener interface {
	// Accept blocks until the opponent connects or ctx is cancelled. The
	// listener stops accepting once it returns a connection.
	Accept(ctx context.Context) (Conn, error)

	// Addr returns the bound address.
	Addr() net.Addr

	// Close releases the listening endpoint.
	Close() error
}

// SetReadDeadline applies t when c supports read deadlines and reports
// whether it did.
func SetReadDeadline(c Conn, t time.Time) (bool, error) {
	d, ok := c.(ReadDeadliner)
	if !ok {
		return false, nil
	}
	return true, d.SetReadDeadline(t)
}

// IsTimeout reports whether err is a read deadline expiring, i.e. the
// "would block" case where no data was available yet.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
