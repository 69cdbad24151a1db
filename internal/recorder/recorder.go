// Package recorder keeps a bounded in-memory log of refresh scheduling
// decisions. It is observability only: nothing reads it back into control
// logic, so it can be disabled (nil recorder) without changing behavior.
package recorder

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yug-minds/livecore/internal/models"
)

// Sink receives a copy of every recorded entry for durable storage.
// Sink failures are logged and never propagated to the caller.
type Sink interface {
	AppendRefreshLog(ctx context.Context, entry *models.RefreshLogEntry) error
}

// Recorder is a fixed-capacity ring of RefreshLogEntry values; when full,
// the oldest entry is evicted. A nil *Recorder drops everything.
type Recorder struct {
	mu      sync.Mutex
	entries []models.RefreshLogEntry
	start   int
	count   int

	sink   Sink
	logger *slog.Logger
}

// New creates a recorder holding at most capacity entries. The sink may be
// nil for memory-only operation.
func New(capacity int, sink Sink, logger *slog.Logger) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		entries: make([]models.RefreshLogEntry, capacity),
		sink:    sink,
		logger:  logger,
	}
}

// Record appends an entry, evicting the oldest when the ring is full, and
// forwards a copy to the sink if one is configured.
func (r *Recorder) Record(entry models.RefreshLogEntry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	idx := (r.start + r.count) % len(r.entries)
	if r.count == len(r.entries) {
		r.start = (r.start + 1) % len(r.entries)
	} else {
		r.count++
	}
	r.entries[idx] = entry
	r.mu.Unlock()

	if r.sink != nil {
		e := entry
		if err := r.sink.AppendRefreshLog(context.Background(), &e); err != nil {
			r.logger.Warn("refresh log sink append failed", "consumer", entry.ConsumerID, "error", err)
		}
	}
}

// Entries returns all retained entries, oldest first.
func (r *Recorder) Entries() []models.RefreshLogEntry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RefreshLogEntry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%len(r.entries)])
	}
	return out
}

// Tail returns up to n of the most recent entries, oldest first.
func (r *Recorder) Tail(n int) []models.RefreshLogEntry {
	all := r.Entries()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of retained entries.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
