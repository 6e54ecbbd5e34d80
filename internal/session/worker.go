package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/duel/internal/protocol"
	"github.com/1ureka/duel/internal/queue"
	"github.com/1ureka/duel/internal/transport"
	"github.com/1ureka/duel/internal/util"
)

// DefaultRetryInterval is the delay before a failed write is attempted again.
const DefaultRetryInterval = 20 * time.Millisecond

// WorkerOptions tunes the connection worker.
type WorkerOptions struct {
	// ReadTimeout bounds each gated read. Zero waits until a full line
	// arrives. Timeouts are not errors; the read is simply issued again.
	ReadTimeout time.Duration

	// RetryInterval is the delay before re-trying a failed write.
	RetryInterval time.Duration
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.ReadTimeout < 0 {
		o.ReadTimeout = 0
	}
	return o
}

type readResult struct {
	line    []byte
	timeout bool
	err     error
}

// worker pumps one connection. The pump goroutine owns the writer and all
// queue handoffs; the reader goroutine only performs the reads the pump asks
// for, one at a time, and only while the turn gate is open.
type worker struct {
	sess *Session
	conn transport.Conn
	opts WorkerOptions
	log  *util.Logger

	outgoing *queue.Queue[string]
	incoming *queue.Queue[string]
	gate     <-chan struct{}

	w          *bufio.Writer
	failStreak int // consecutive failed drains; pump goroutine only
	reqs       chan struct{}
	results    chan readResult
}

func newWorker(s *Session, conn transport.Conn, opts WorkerOptions) *worker {
	return &worker{
		sess:     s,
		conn:     conn,
		opts:     opts.withDefaults(),
		log:      util.Prefixed(s.tag(conn)),
		outgoing: s.outgoing,
		incoming: s.incoming,
		gate:     s.gate,
		w:        bufio.NewWriter(conn),
		reqs:     make(chan struct{}, 1),
		results:  make(chan readResult),
	}
}

// run blocks until the connection ends and returns the cause. The connection
// is closed on return.
func (w *worker) run(ctx context.Context) error {
	w.log.Debug("worker started")

	g, ctx := errgroup.WithContext(ctx)

	// Unblock a pending Read as soon as either side gives up.
	stop := context.AfterFunc(ctx, func() { w.conn.Close() })
	defer stop()

	g.Go(w.guard(func() error { return w.pump(ctx) }))
	g.Go(w.guard(func() error { return w.readLoop(ctx) }))

	err := g.Wait()
	w.conn.Close()
	return err
}

func (w *worker) guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		return fn()
	}
}

func (w *worker) logExit(err error) {
	switch {
	case errors.Is(err, ErrPeerClosed):
		w.log.Info("opponent disconnected")
	case endedCleanly(err):
		w.log.Debug("worker stopped: %v", err)
	default:
		w.log.Error("connection lost: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Pump
// ---------------------------------------------------------------------------

func (w *worker) pump(ctx context.Context) error {
	var (
		reading bool
		retry   *time.Timer
		retryC  <-chan time.Time
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		if retryC == nil && !w.flush() {
			retry = time.NewTimer(w.opts.RetryInterval)
			retryC = retry.C
		}

		if !reading && w.sess.ShouldListen() {
			w.reqs <- struct{}{}
			reading = true
		}

		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case <-w.outgoing.Ready():
		case <-w.gate:

		case <-retryC:
			retryC = nil

		case res := <-w.results:
			reading = false
			w.deliver(res.line)
			if res.err != nil {
				return res.err
			}
			if res.timeout {
				w.log.Debug("read timed out, waiting again")
			}
		}
	}
}

// flush drains the outgoing queue and reports whether it fully succeeded.
// Only the first failure of a streak is logged as a warning; repeats on a
// socket that stays broken go to debug.
func (w *worker) flush() bool {
	err := w.drain()
	if err == nil {
		if w.failStreak > 0 {
			w.log.Info("write recovered after %d failed attempts", w.failStreak)
			w.failStreak = 0
		}
		return true
	}

	util.Stats.AddWriteFailure()
	w.failStreak++
	w.w.Reset(w.conn)
	if w.failStreak == 1 {
		w.log.Warn("write failed, retrying every %s: %v", w.opts.RetryInterval, err)
	} else {
		w.log.Debug("write still failing (attempt %d): %v", w.failStreak, err)
	}
	return false
}

// drain writes queued lines in order. A line leaves the queue only after it
// has been flushed, so a failed write is retried with the same line.
func (w *worker) drain() error {
	for {
		line, ok := w.outgoing.Peek()
		if !ok {
			return nil
		}

		if _, err := w.w.WriteString(line); err != nil {
			return err
		}
		if err := w.w.WriteByte(protocol.LineTerminator); err != nil {
			return err
		}
		if err := w.w.Flush(); err != nil {
			return err
		}

		w.outgoing.TryPop()
		util.Stats.AddSent(len(line) + 1)
		w.log.Debug("sent %q", line)
	}
}

func (w *worker) deliver(raw []byte) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return
	}
	w.incoming.Push(line)
	util.Stats.AddRecv(len(raw))
	w.log.Debug("received %q", line)
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// readLoop performs one line read per request. Bytes of a line cut short by
// a timeout are kept and completed by the next read.
func (w *worker) readLoop(ctx context.Context) error {
	br := bufio.NewReader(w.conn)
	var partial []byte

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-w.reqs:
		}

		if w.opts.ReadTimeout > 0 {
			if _, err := transport.SetReadDeadline(w.conn, time.Now().Add(w.opts.ReadTimeout)); err != nil {
				w.log.Debug("failed to set read deadline: %v", err)
			}
		}

		chunk, err := br.ReadBytes(protocol.LineTerminator)
		partial = append(partial, chunk...)

		var res readResult
		switch {
		case err == nil:
			res.line = partial
			partial = nil
		case errors.Is(err, io.EOF):
			res.line = partial
			res.err = ErrPeerClosed
		case transport.IsTimeout(err):
			res.timeout = true
		default:
			res.err = fmt.Errorf("read failed: %w", err)
		}

		select {
		case w.results <- res:
		case <-ctx.Done():
			return context.Cause(ctx)
		}

		if res.err != nil {
			return nil
		}
	}
}
