// Package lifecycle decouples the scheduler and liveness monitor from
// whatever host actually produces "the user came back" events. In the
// dashboard shell that is visibilitychange/focus forwarded over the control
// API; in tests it is direct Emit calls.
package lifecycle

import (
	"sync"

	"github.com/yug-minds/livecore/internal/models"
)

// Source delivers became-active events to subscribers.
type Source interface {
	// Subscribe registers fn for future events and returns a cancel func.
	// Cancel is idempotent; after it returns fn is never invoked again.
	Subscribe(fn func(models.TriggerKind)) (cancel func())
}

// Hub is a fan-out Source fed by Emit.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(models.TriggerKind)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(models.TriggerKind))}
}

// Subscribe implements Source.
func (h *Hub) Subscribe(fn func(models.TriggerKind)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Emit delivers kind to every current subscriber, synchronously, in
// unspecified order. Subscribers that need isolation should not block.
func (h *Hub) Emit(kind models.TriggerKind) {
	h.mu.Lock()
	fns := make([]func(models.TriggerKind), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(kind)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
