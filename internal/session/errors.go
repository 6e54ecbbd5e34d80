package session

import "errors"

var (
	ErrNotConnected    = errors.New("session is not connected")
	ErrNotLocalTurn    = errors.New("not the local player's turn")
	ErrAlreadyAttached = errors.New("session already has a connection")
	ErrPeerClosed      = errors.New("peer closed the connection")
	ErrWorkerPanic     = errors.New("connection worker panicked")
	ErrClosed          = errors.New("session closed")
)
