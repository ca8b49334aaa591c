// Package store provides the local durable store for tasksync.
//
// The store is an embedded SQLite database (WAL mode for concurrent
// reads) holding four logical collections plus a dead-letter table:
//
//   - tasks        (key: id; indexes: created_at, updated_at, done)
//   - tags         (key: name; index: created_at)
//   - metadata     (key: key)
//   - pending_sync (key: id; indexes: timestamp, operation)
//   - dead_letter  (key: id)
//
// Every exported operation is its own transaction: an individual write
// is durable once it returns, but multi-record helpers such as PutTasks
// only guarantee per-record atomicity, never batch atomicity.
//
// Schema provisioning is idempotent and versioned: collections and
// their indexes are created only when the stored schema version
// (PRAGMA user_version) is behind the version compiled into the binary.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// schemaVersion is bumped whenever the DDL below changes. Provisioning
// runs only when the on-disk version is behind this value.
const schemaVersion = 1

// Store wraps the SQLite connection for the tasksync collections.
//
// A Store is created closed; call Open before use. Operations invoked
// before Open completes fail with ErrNotInitialized.
type Store struct {
	path string
	conn *sql.DB
}

// New creates a Store for the database at path. The database is not
// opened yet; call Open.
func New(path string) *Store {
	return &Store{path: path}
}

// Open opens the database, applies connection pragmas, and provisions
// the schema if the stored version is behind. Safe to call once; the
// caller must Close when done.
func (s *Store) Open(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// WAL for concurrent reads during writes
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := provision(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}

	s.conn = conn
	return nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// db returns the live connection or ErrNotInitialized.
func (s *Store) db() (*sql.DB, error) {
	if s.conn == nil {
		return nil, ErrNotInitialized
	}
	return s.conn, nil
}

// provision creates collections and indexes when the stored schema
// version is behind schemaVersion. Idempotent.
func provision(ctx context.Context, conn *sql.DB) error {
	var current int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	ddl := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		tag TEXT NOT NULL DEFAULT '',
		due TEXT,
		done INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tags (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT NOT NULL
	);

	-- Pending mutations awaiting remote delivery. Enumeration order is
	-- insertion order (rowid), not the timestamp index.
	CREATE TABLE IF NOT EXISTS pending_sync (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		data TEXT,
		timestamp TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL
	);

	-- Operations that exhausted their retries, kept for audit/requeue.
	CREATE TABLE IF NOT EXISTS dead_letter (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		data TEXT,
		timestamp TEXT NOT NULL,
		retry_count INTEGER NOT NULL,
		max_retries INTEGER NOT NULL,
		failed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_updated ON tasks(updated_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(done);
	CREATE INDEX IF NOT EXISTS idx_tags_created ON tags(created_at);
	CREATE INDEX IF NOT EXISTS idx_pending_timestamp ON pending_sync(timestamp);
	CREATE INDEX IF NOT EXISTS idx_pending_operation ON pending_sync(operation);
	`

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to provision schema: %w", err)
	}

	// PRAGMA does not support placeholders
	stmt := fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
