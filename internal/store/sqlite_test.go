package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yug-minds/livecore/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestRefreshLog_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := &models.RefreshLogEntry{
			ConsumerID: "courses-table",
			Trigger:    models.TriggerVisibility,
			Outcome:    models.OutcomeExecuted,
			At:         base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AppendRefreshLog(ctx, e))
		assert.NotEmpty(t, e.ID, "append must assign an id")
	}

	entries, err := s.ListRefreshLog(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].At.After(entries[2].At), "newest first")
	assert.Equal(t, models.TriggerVisibility, entries[0].Trigger)
	assert.Equal(t, models.OutcomeExecuted, entries[0].Outcome)
}

func TestRefreshLog_FilterByConsumer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendRefreshLog(ctx, &models.RefreshLogEntry{
		ConsumerID: "a", Trigger: models.TriggerFocus, Outcome: models.OutcomeThrottled, Throttled: true,
	}))
	require.NoError(t, s.AppendRefreshLog(ctx, &models.RefreshLogEntry{
		ConsumerID: "b", Trigger: models.TriggerManual, Outcome: models.OutcomeSkippedUnsaved, SkippedUnsaved: true,
	}))

	entries, err := s.ListRefreshLog(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Throttled)
	assert.False(t, entries[0].SkippedUnsaved)
}

func TestRefreshLog_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendRefreshLog(ctx, &models.RefreshLogEntry{
			ConsumerID: fmt.Sprintf("c%d", i),
			Trigger:    models.TriggerTimer,
			Outcome:    models.OutcomeExecuted,
			At:         base.Add(time.Duration(i) * time.Second),
		}))
	}

	removed, err := s.PruneRefreshLog(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), removed)

	entries, err := s.ListRefreshLog(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "c9", entries[0].ConsumerID, "newest entries survive the prune")
}

func TestSessionEvents_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSessionEvent(ctx, &models.SessionEvent{
		ClientID: "client-1",
		Phase:    models.PhaseMonitoring,
		Detail:   "grace period elapsed",
	}))
	require.NoError(t, s.AppendSessionEvent(ctx, &models.SessionEvent{
		ClientID: "client-1",
		Phase:    models.PhaseInvalid,
		Reason:   models.ReasonInactive,
		Detail:   "no activity for 31m",
	}))

	events, err := s.ListSessionEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.PhaseInvalid, events[0].Phase)
	assert.Equal(t, models.ReasonInactive, events[0].Reason)
	assert.Equal(t, models.PhaseMonitoring, events[1].Phase)
	assert.Empty(t, events[1].Reason)
}
