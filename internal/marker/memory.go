package marker

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the marker in memory. Used in tests and as the fallback
// when no durable backend is configured.
type MemoryStore struct {
	mu  sync.Mutex
	at  time.Time
	set bool
}

// NewMemoryStore returns an empty in-memory marker store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Mark(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at = at
	m.set = true
	return nil
}

func (m *MemoryStore) Get(_ context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.at, m.set, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at = time.Time{}
	m.set = false
	return nil
}
