package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yug-minds/livecore/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's pool, preventing "database is
	// locked" errors when the recorder sink and the CLI overlap.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Refresh log ---

func (s *SQLiteStore) AppendRefreshLog(ctx context.Context, entry *models.RefreshLogEntry) error {
	if entry.ID == "" {
		entry.ID = newULID()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO refresh_log
		(id, consumer_id, trigger_kind, outcome, throttled, skipped_unsaved, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ConsumerID, string(entry.Trigger), string(entry.Outcome),
		boolToInt(entry.Throttled), boolToInt(entry.SkippedUnsaved), entry.Error, entry.At.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh log entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRefreshLog(ctx context.Context, consumerID string, limit int) ([]*models.RefreshLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, consumer_id, trigger_kind, outcome, throttled, skipped_unsaved, error, at
		FROM refresh_log`
	args := []any{}
	if consumerID != "" {
		query += " WHERE consumer_id = ?"
		args = append(args, consumerID)
	}
	query += " ORDER BY at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query refresh log: %w", err)
	}
	defer rows.Close()

	var entries []*models.RefreshLogEntry
	for rows.Next() {
		var e models.RefreshLogEntry
		var trigger, outcome string
		var throttled, skipped int
		if err := rows.Scan(&e.ID, &e.ConsumerID, &trigger, &outcome, &throttled, &skipped, &e.Error, &e.At); err != nil {
			return nil, fmt.Errorf("scan refresh log entry: %w", err)
		}
		e.Trigger = models.TriggerKind(trigger)
		e.Outcome = models.RefreshOutcome(outcome)
		e.Throttled = throttled == 1
		e.SkippedUnsaved = skipped == 1
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// PruneRefreshLog deletes all but the newest keep entries, returning the
// number removed.
func (s *SQLiteStore) PruneRefreshLog(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_log WHERE id NOT IN (
		SELECT id FROM refresh_log ORDER BY at DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune refresh log: %w", err)
	}
	return res.RowsAffected()
}

// --- Session events ---

func (s *SQLiteStore) AppendSessionEvent(ctx context.Context, event *models.SessionEvent) error {
	if event.ID == "" {
		event.ID = newULID()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO session_events
		(id, client_id, phase, reason, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.ClientID, string(event.Phase), string(event.Reason), event.Detail, event.At.UTC())
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessionEvents(ctx context.Context, limit int) ([]*models.SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, client_id, phase, reason, detail, at
		FROM session_events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []*models.SessionEvent
	for rows.Next() {
		var e models.SessionEvent
		var phase, reason string
		if err := rows.Scan(&e.ID, &e.ClientID, &phase, &reason, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		e.Phase = models.SessionPhase(phase)
		e.Reason = models.InvalidReason(reason)
		events = append(events, &e)
	}
	return events, rows.Err()
}
