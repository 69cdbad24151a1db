// Package marker persists the fresh-login timestamp that anchors the
// liveness monitor's grace window. The login flow writes it; the monitor
// reads it and clears it once the window has elapsed.
package marker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store persists a single login timestamp.
type Store interface {
	// Mark records the login instant, replacing any previous marker.
	Mark(ctx context.Context, at time.Time) error

	// Get returns the recorded instant. ok is false when no marker exists.
	Get(ctx context.Context) (at time.Time, ok bool, err error)

	// Clear removes the marker. Clearing an absent marker is not an error.
	Clear(ctx context.Context) error
}

// WithinGrace reports whether now falls inside the grace window anchored at
// the stored marker. Once the window has elapsed the marker is cleared as a
// side effect, so login noise from a previous session can never suppress a
// later check. Store errors fail open to "not in grace" without clearing.
func WithinGrace(ctx context.Context, s Store, now time.Time, window time.Duration) bool {
	at, ok, err := s.Get(ctx)
	if err != nil || !ok {
		return false
	}
	if now.Sub(at) <= window {
		return true
	}
	_ = s.Clear(ctx)
	return false
}

// FileStore keeps the marker as a unix-millisecond timestamp in a file under
// the state directory.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Mark(_ context.Context, at time.Time) error {
	data := strconv.FormatInt(at.UnixMilli(), 10) + "\n"
	if err := os.WriteFile(f.Path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write login marker: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context) (time.Time, bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read login marker: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid login marker content: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (f *FileStore) Clear(_ context.Context) error {
	err := os.Remove(f.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove login marker: %w", err)
	}
	return nil
}
