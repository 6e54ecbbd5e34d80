// Package session owns the shared state of one Host/Client game connection:
// the turn counter, the two move queues, and the background worker that
// moves lines between the queues and the wire.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/1ureka/duel/internal/config"
	"github.com/1ureka/duel/internal/protocol"
	"github.com/1ureka/duel/internal/queue"
	"github.com/1ureka/duel/internal/transport"
	"github.com/1ureka/duel/internal/util"
)

// Session is the connection state shared between the game loop and the
// worker. All mutable fields are guarded by mu, which is never held across
// I/O.
type Session struct {
	id       uuid.UUID
	role     config.Role
	outgoing *queue.Queue[string]
	incoming *queue.Queue[string]

	// gate is signaled whenever the turn counter changes.
	gate chan struct{}

	mu     sync.Mutex
	turn   uint64
	state  State
	err    error
	cancel context.CancelCauseFunc
	ready  chan struct{}
	done   chan struct{}
}

// New creates an idle session for the given role.
func New(role config.Role) *Session {
	return &Session{
		id:       uuid.New(),
		role:     role,
		outgoing: queue.New[string](),
		incoming: queue.New[string](),
		gate:     make(chan struct{}, 1),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) Role() config.Role { return s.role }

// ---------------------------------------------------------------------------
// Turn
// ---------------------------------------------------------------------------

// Turn returns the current turn counter. It is 0 until a game starts.
func (s *Session) Turn() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// SetTurn overwrites the turn counter.
func (s *Session) SetTurn(turn uint64) {
	s.mu.Lock()
	s.turn = turn
	s.mu.Unlock()
	s.notifyGate()
}

// Phase reports whether the local side or the opponent moves next.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PhaseFor(s.turn, s.role)
}

// ShouldListen reports whether the worker may issue a read right now.
func (s *Session) ShouldListen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ShouldListen(s.turn, s.role)
}

// MoveApplied advances the turn after a move from either side has been
// accepted by the rules.
func (s *Session) MoveApplied() {
	s.mu.Lock()
	s.turn++
	s.mu.Unlock()
	s.notifyGate()
}

func (s *Session) notifyGate() {
	select {
	case s.gate <- struct{}{}:
	default:
	}
}

// ---------------------------------------------------------------------------
// Queues
// ---------------------------------------------------------------------------

// Send queues a raw line for the opponent. It never blocks and is allowed in
// any state; lines queued before the connection exists are sent once it
// does. line must not contain a line terminator.
func (s *Session) Send(line string) {
	s.outgoing.Push(line)
}

// Submit queues a local move and advances the turn in one step, so the
// worker never sees the move without the turn change or the reverse.
func (s *Session) Submit(m protocol.Move) error {
	return s.SubmitWith(m, nil)
}

// SubmitWith is Submit with a commit hook. apply runs only once the session
// is known to be running on the local turn, and the move is queued only if
// apply succeeds; no disconnect can slip in between. apply runs with the
// session locked and must not call back into it.
func (s *Session) SubmitWith(m protocol.Move, apply func(protocol.Move) error) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %s", protocol.ErrSquareOutside, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return ErrNotConnected
	}
	if PhaseFor(s.turn, s.role) != WaitingForLocalMove {
		return ErrNotLocalTurn
	}
	if apply != nil {
		if err := apply(m); err != nil {
			return err
		}
	}

	s.outgoing.Push(m.String())
	s.turn++
	s.notifyGate()
	return nil
}

// Receive pops the oldest line received from the opponent.
func (s *Session) Receive() (string, bool) {
	return s.incoming.TryPop()
}

// ReceiveAll pops every line received so far, oldest first.
func (s *Session) ReceiveAll() []string {
	return s.incoming.Drain()
}

// Incoming delivers a wake-up whenever a line is received. Drain with
// Receive after each wake-up.
func (s *Session) Incoming() <-chan struct{} {
	return s.incoming.Ready()
}

// Pending returns the number of lines not yet written to the wire.
func (s *Session) Pending() int {
	return s.outgoing.Len()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Attach hands an established connection to the session and starts the
// worker. The session owns conn from here on. The Host moves first, so
// attaching as Host sets the turn to 1; the Client's counter is left as is.
func (s *Session) Attach(ctx context.Context, conn transport.Conn, opts WorkerOptions) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		conn.Close()
		return ErrAlreadyAttached
	}

	ctx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	s.state = StateRunning
	if s.role == config.RoleHost {
		s.turn = 1
	}
	close(s.ready)
	s.mu.Unlock()
	s.notifyGate()

	w := newWorker(s, conn, opts)
	go func() {
		err := w.run(ctx)
		cancel(err)
		s.finish(err)
		w.logExit(err)
	}()
	return nil
}

// Fail moves the session straight to Disconnected. It is used when the
// connection could not be established at all.
func (s *Session) Fail(err error) {
	s.finish(err)
}

// Close stops the worker and closes the connection. Err reports ErrClosed
// afterwards unless the session had already ended.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	if cancel == nil {
		s.finishLocked(ErrClosed)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel(ErrClosed)
		<-s.done
	}
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	s.finishLocked(err)
	s.mu.Unlock()
}

func (s *Session) finishLocked(err error) {
	if s.state == StateDisconnected {
		return
	}
	s.state = StateDisconnected
	s.err = err
	close(s.done)
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the worker is running.
func (s *Session) Connected() bool {
	return s.State() == StateRunning
}

// Err returns the reason the session ended, or nil while it is live.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready is closed once a connection is attached.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed once the session reaches Disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends or ctx is cancelled.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// endedCleanly reports whether err is an orderly end rather than a fault.
func endedCleanly(err error) bool {
	return errors.Is(err, ErrPeerClosed) || errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled)
}

func (s *Session) tag(conn transport.Conn) string {
	return fmt.Sprintf("%s %08x", s.role, util.Fingerprint(conn, s.id.String()))
}
