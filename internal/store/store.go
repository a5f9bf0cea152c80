// Package store provides the SQLite-backed event/task store for the planner.
//
// The database runs embedded (ncruces/go-sqlite3, no CGO) in WAL mode so the
// dashboard can read while the sync daemon writes.
//
// Architecture:
//   - Database file: ~/.local/share/planner/planner.db by default
//   - Tables: accounts, events, tasks, focus_preferences, travel_segments
//   - Travel segments cascade away with either endpoint event
//   - tasks.event_id is cleared when its event row is deleted
//
// All query methods live on *Queries, which is backed either by the pooled
// connection (DB) or by a transaction (WithTx). A reconciliation cycle uses
// two separate WithTx calls so that a failed push never rolls back a pull.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// queryer is the subset of *sql.DB and *sql.Tx the queries need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs store queries against a connection or a transaction.
type Queries struct {
	q queryer
}

// DB wraps the SQLite connection pool.
type DB struct {
	*Queries
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path and
// initializes the schema.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// foreign_keys and busy_timeout are per-connection, so they go in the DSN
	// to apply to every pooled connection.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		Queries: &Queries{q: conn},
		conn:    conn,
		path:    path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credential TEXT,
		calendar_url TEXT,
		sync_enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		category TEXT,
		status TEXT NOT NULL DEFAULT 'planned',
		source TEXT NOT NULL DEFAULT 'local',
		sync_status TEXT NOT NULL DEFAULT 'unsynced',
		remote_id TEXT,
		last_synced_at TEXT,
		location TEXT,  -- JSON object
		task_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		priority INTEGER NOT NULL DEFAULT 2,
		deadline TEXT,
		done INTEGER NOT NULL DEFAULT 0,
		late INTEGER NOT NULL DEFAULT 0,
		event_id TEXT REFERENCES events(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS focus_preferences (
		user_id TEXT PRIMARY KEY,
		max_events_per_day INTEGER NOT NULL,
		min_focus_minutes INTEGER NOT NULL,
		preferred_band TEXT NOT NULL,
		focus_mode_enabled INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS travel_segments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		from_event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		to_event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		mode TEXT NOT NULL,
		distance_km REAL,
		UNIQUE (from_event_id, to_event_id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_user_start ON events(user_id, start_at);
	CREATE INDEX IF NOT EXISTS idx_events_remote ON events(user_id, remote_id);
	CREATE INDEX IF NOT EXISTS idx_events_sync ON events(user_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, done, late);
	CREATE INDEX IF NOT EXISTS idx_tasks_event ON tasks(event_id);
	CREATE INDEX IF NOT EXISTS idx_travel_user ON travel_segments(user_id, start_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Snapshot writes a consistent copy of the database to path. The file must
// not exist yet.
func (db *DB) Snapshot(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// timeToString formats a timestamp for storage. All stored times are UTC
// RFC3339 so that string comparison orders them chronologically.
func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: timeToString(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
