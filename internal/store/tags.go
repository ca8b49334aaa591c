package store

import (
	"context"
	"fmt"
	"time"

	"github.com/localfirst/tasksync/internal/model"
)

// PutTag inserts or updates a tag. Uniqueness is enforced by name.
func (s *Store) PutTag(ctx context.Context, tag *model.Tag) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	if err := tag.Validate(); err != nil {
		return fmt.Errorf("invalid tag: %w", err)
	}

	query := `
	INSERT INTO tags (name, created_at) VALUES (?, ?)
	ON CONFLICT(name) DO UPDATE SET created_at = excluded.created_at
	`
	_, err = conn.ExecContext(ctx, query, tag.Name,
		tag.CreatedAt.Format(time.RFC3339Nano))
	return wrap("tags", "put", err)
}

// PutTagIfAbsent inserts a tag only when no tag with that name exists,
// preserving the original creation time on re-adds.
func (s *Store) PutTagIfAbsent(ctx context.Context, tag *model.Tag) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	if err := tag.Validate(); err != nil {
		return fmt.Errorf("invalid tag: %w", err)
	}

	_, err = conn.ExecContext(ctx,
		`INSERT INTO tags (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		tag.Name, tag.CreatedAt.Format(time.RFC3339Nano))
	return wrap("tags", "put", err)
}

// PutTags writes each tag in its own transaction (batch not atomic).
func (s *Store) PutTags(ctx context.Context, tags []*model.Tag) error {
	for _, tag := range tags {
		if err := s.PutTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// ListTags returns the full tags collection ordered by creation time.
func (s *Store) ListTags(ctx context.Context) ([]*model.Tag, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT name, created_at FROM tags ORDER BY created_at ASC`)
	if err != nil {
		return nil, wrap("tags", "list", err)
	}
	defer rows.Close()

	var tags []*model.Tag
	for rows.Next() {
		var tag model.Tag
		var createdAt string
		if err := rows.Scan(&tag.Name, &createdAt); err != nil {
			return nil, wrap("tags", "scan", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			tag.CreatedAt = t
		}
		tags = append(tags, &tag)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("tags", "list", err)
	}
	return tags, nil
}

// DeleteTag removes a tag and clears the tag reference on every task
// that carries it. Tasks themselves are never cascade-deleted. Both
// statements run in one transaction.
func (s *Store) DeleteTag(ctx context.Context, name string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("tags", "delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET tag = '' WHERE tag = ?`, name); err != nil {
		return wrap("tags", "delete", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tags WHERE name = ?`, name); err != nil {
		return wrap("tags", "delete", err)
	}

	return wrap("tags", "delete", tx.Commit())
}

// ClearTags removes every tag. Task tag references are left as-is;
// use DeleteTag for reference-clearing semantics.
func (s *Store) ClearTags(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM tags`)
	return wrap("tags", "clear", err)
}
