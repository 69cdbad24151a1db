package marker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh_login")
	s := NewFileStore(path)
	ctx := context.Background()

	_, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no marker before Mark")

	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Mark(ctx, at))

	got, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at), "millisecond precision survives the round trip")

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_ClearAbsentIsNoError(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	assert.NoError(t, s.Clear(context.Background()))
}

func TestFileStore_CorruptContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh_login")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	s := NewFileStore(path)
	_, _, err := s.Get(context.Background())
	assert.Error(t, err)
}

func TestWithinGrace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	login := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	require.NoError(t, s.Mark(ctx, login))

	assert.True(t, WithinGrace(ctx, s, login.Add(time.Minute), window))

	// At exactly the boundary the window still holds
	assert.True(t, WithinGrace(ctx, s, login.Add(window), window))

	// Past the boundary: reports false and clears the marker
	assert.False(t, WithinGrace(ctx, s, login.Add(window+time.Second), window))
	_, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "expired marker must be cleared as a side effect")
}

func TestWithinGrace_NoMarker(t *testing.T) {
	s := NewMemoryStore()
	assert.False(t, WithinGrace(context.Background(), s, time.Now(), time.Minute))
}
