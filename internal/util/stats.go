package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter.
var Stats = &stats{}

type stats struct {
	MovesSent     atomic.Int64 // lines written and flushed to the opponent
	MovesRecv     atomic.Int64 // non-empty lines pushed to the incoming queue
	BytesSent     atomic.Int64
	BytesRecv     atomic.Int64
	WriteFailures atomic.Int64 // drain phases aborted by a write or flush error
}

func (s *stats) AddSent(n int) {
	s.MovesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.MovesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddWriteFailure() { s.WriteFailures.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs session statistics every
// interval whenever something changed. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := takeSnapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(cur))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	sent, recv, bytesSent, bytesRecv, failures int64
}

func takeSnapshot() snapshot {
	return snapshot{
		sent:      Stats.MovesSent.Load(),
		recv:      Stats.MovesRecv.Load(),
		bytesSent: Stats.BytesSent.Load(),
		bytesRecv: Stats.BytesRecv.Load(),
		failures:  Stats.WriteFailures.Load(),
	}
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the snapshot for display in the logger.
func formatStats(s snapshot) string {
	return fmt.Sprintf("Moves: %3d↑ %3d↓ | Bytes: %s↑ %s↓ | Write failures: %d",
		s.sent,
		s.recv,
		formatBytes(float64(s.bytesSent)),
		formatBytes(float64(s.bytesRecv)),
		s.failures,
	)
}
