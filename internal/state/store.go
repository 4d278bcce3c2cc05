// Package state persists per-tenant crawl state in a single SQLite
// database: URL metadata, the pending queue, the event log, checkpoints
// and lock leases. All mutations go through short transactions.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
)

const (
	// StatusPending means the URL is known but has never been fetched
	// successfully.
	StatusPending = "pending"
	// StatusSuccess means the last fetch attempt succeeded.
	StatusSuccess = "success"
	// StatusFailed means the last fetch attempt failed.
	StatusFailed = "failed"
)

const (
	maxConnectAttempts = 5
	connectRetryDelay  = 200 * time.Millisecond

	// DefaultMinFetchInterval is how long a successful fetch shields a
	// URL from being re-enqueued without force.
	DefaultMinFetchInterval = 24 * time.Hour
)

// Store is a per-tenant crawl state store. It is safe for concurrent use;
// SQLite serializes writers and the store keeps transactions short.
type Store struct {
	db               *sql.DB
	path             string
	minFetchInterval time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMinFetchInterval overrides the re-enqueue shield for successfully
// fetched URLs.
func WithMinFetchInterval(d time.Duration) Option {
	return func(s *Store) { s.minFetchInterval = d }
}

// Open creates (or opens) the state database at path. The parent
// directory is created if missing, and transient SQLite open errors are
// retried a bounded number of times before escalating to a critical
// storage error.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := connect(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:               db,
		path:             path,
		minFetchInterval: DefaultMinFetchInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize state schema: %w", err)
	}
	return s, nil
}

// connect opens the database with bounded retries on transient errors.
func connect(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		db, err := sql.Open("sqlite", path)
		if err == nil {
			err = db.Ping()
			if err == nil {
				// A single connection avoids SQLITE_BUSY between
				// concurrent writers in the same process.
				db.SetMaxOpenConns(1)
				return db, nil
			}
			_ = db.Close()
		}
		lastErr = err
		if !isTransientOpenError(err) {
			break
		}
		time.Sleep(connectRetryDelay)
	}
	return nil, apperrors.DatabaseCritical(lastErr, fmt.Sprintf("open state database %s", path))
}

func isTransientOpenError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "unable to open database file") ||
		strings.Contains(msg, "database is locked")
}

func (s *Store) initialize() error {
	pragmas := `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;
	`
	if _, err := s.db.Exec(pragmas); err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS url_metadata (
		canonical_url TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		first_seen_at INTEGER NOT NULL,
		last_fetched_at INTEGER,
		last_failure_at INTEGER,
		last_status TEXT NOT NULL DEFAULT 'pending',
		next_due_at INTEGER,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_failure_reason TEXT,
		markdown_rel_path TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_metadata_status ON url_metadata(last_status);
	CREATE INDEX IF NOT EXISTS idx_metadata_due ON url_metadata(next_due_at);

	CREATE TABLE IF NOT EXISTS crawl_queue (
		canonical_url TEXT PRIMARY KEY,
		priority INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		enqueued_at INTEGER NOT NULL,
		force INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_queue_order ON crawl_queue(priority DESC, enqueued_at ASC);

	CREATE TABLE IF NOT EXISTS crawl_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_at INTEGER NOT NULL,
		canonical_url TEXT,
		url TEXT,
		event_type TEXT NOT NULL,
		status TEXT,
		reason TEXT,
		detail TEXT,
		duration_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_events_at ON crawl_events(event_at);
	CREATE INDEX IF NOT EXISTS idx_events_type ON crawl_events(event_type);

	CREATE TABLE IF NOT EXISTS crawl_checkpoints (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS crawl_checkpoint_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoint_history_key ON crawl_checkpoint_history(key);

	CREATE TABLE IF NOT EXISTS crawl_locks (
		name TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		acquired_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nullableUnix converts a possibly-zero time into a nullable column value.
func nullableUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func scanUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}
