package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/localfirst/tasksync/internal/model"
)

// PutMeta stores a metadata value under key. The value is serialized
// as JSON and UpdatedAt is set to the current time.
func (s *Store) PutMeta(ctx context.Context, key string, value any) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata value for %q: %w", key, err)
	}

	query := `
	INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err = conn.ExecContext(ctx, query, key, string(raw),
		time.Now().Format(time.RFC3339Nano))
	return wrap("metadata", "put", err)
}

// PutMetaEntry stores a full metadata record, preserving its UpdatedAt.
// Used by restore paths that must not rewrite timestamps.
func (s *Store) PutMetaEntry(ctx context.Context, entry *model.MetadataEntry) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	if entry.Key == "" {
		return fmt.Errorf("invalid metadata entry: key is required")
	}

	query := `
	INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err = conn.ExecContext(ctx, query, entry.Key, string(entry.Value),
		entry.UpdatedAt.Format(time.RFC3339Nano))
	return wrap("metadata", "put", err)
}

// GetMeta unmarshals the value stored under key into out. Returns
// ErrNotFound when the key is absent.
func (s *Store) GetMeta(ctx context.Context, key string, out any) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	var raw sql.NullString
	err = conn.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrap("metadata", "get", err)
	}
	if !raw.Valid {
		return ErrNotFound
	}

	if err := json.Unmarshal([]byte(raw.String), out); err != nil {
		return fmt.Errorf("failed to unmarshal metadata value for %q: %w", key, err)
	}
	return nil
}

// ListMeta returns the full metadata collection.
func (s *Store) ListMeta(ctx context.Context) ([]*model.MetadataEntry, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT key, value, updated_at FROM metadata ORDER BY key ASC`)
	if err != nil {
		return nil, wrap("metadata", "list", err)
	}
	defer rows.Close()

	var entries []*model.MetadataEntry
	for rows.Next() {
		var entry model.MetadataEntry
		var raw sql.NullString
		var updatedAt string
		if err := rows.Scan(&entry.Key, &raw, &updatedAt); err != nil {
			return nil, wrap("metadata", "scan", err)
		}
		if raw.Valid {
			entry.Value = json.RawMessage(raw.String)
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			entry.UpdatedAt = t
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("metadata", "list", err)
	}
	return entries, nil
}

// DeleteMeta removes a metadata entry. Idempotent.
func (s *Store) DeleteMeta(ctx context.Context, key string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	return wrap("metadata", "delete", err)
}

// ClearMeta removes every metadata entry.
func (s *Store) ClearMeta(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM metadata`)
	return wrap("metadata", "clear", err)
}
