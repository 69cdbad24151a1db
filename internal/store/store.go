package store

import (
	"context"

	"github.com/yug-minds/livecore/internal/models"
)

// Store defines the persistence interface for livecore's diagnostic data:
// refresh scheduling decisions and session lifecycle events. Nothing in the
// scheduling or liveness control paths reads from it.
type Store interface {
	// Refresh log
	AppendRefreshLog(ctx context.Context, entry *models.RefreshLogEntry) error
	ListRefreshLog(ctx context.Context, consumerID string, limit int) ([]*models.RefreshLogEntry, error)
	PruneRefreshLog(ctx context.Context, keep int) (int64, error)

	// Session events
	AppendSessionEvent(ctx context.Context, event *models.SessionEvent) error
	ListSessionEvents(ctx context.Context, limit int) ([]*models.SessionEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
