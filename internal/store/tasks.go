package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/localfirst/tasksync/internal/model"
)

// PutTask inserts or updates a single task in its own transaction.
func (s *Store) PutTask(ctx context.Context, task *model.Task) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (id, title, tag, due, done, created_at, updated_at, synced)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		tag = excluded.tag,
		due = excluded.due,
		done = excluded.done,
		updated_at = excluded.updated_at,
		synced = excluded.synced
	`

	_, err = conn.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Tag,
		timeToNullString(task.Due),
		boolToInt(task.Done),
		task.CreatedAt.Format(time.RFC3339Nano),
		task.UpdatedAt.Format(time.RFC3339Nano),
		boolToInt(task.Synced),
	)
	return wrap("tasks", "put", err)
}

// PutTasks writes each task in its own transaction. The batch is NOT
// atomic: a failure partway leaves earlier records committed. Returns
// the first error encountered.
func (s *Store) PutTasks(ctx context.Context, tasks []*model.Task) error {
	for _, task := range tasks {
		if err := s.PutTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// GetTask retrieves a single task by ID. Returns ErrNotFound if the
// task does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
	SELECT id, title, tag, due, done, created_at, updated_at, synced
	FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("tasks", "get", err)
	}
	return task, nil
}

// ListTasks returns the full tasks collection ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]*model.Task, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
	SELECT id, title, tag, due, done, created_at, updated_at, synced
	FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, wrap("tasks", "list", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, wrap("tasks", "scan", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("tasks", "list", err)
	}
	return tasks, nil
}

// MarkTaskSynced sets the synced flag after the remote endpoint
// acknowledged the task's delivery. A missing task is not an error: it
// may have been deleted locally while its mutation was still queued.
func (s *Store) MarkTaskSynced(ctx context.Context, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `UPDATE tasks SET synced = 1 WHERE id = ?`, id)
	return wrap("tasks", "sync", err)
}

// DeleteTask removes a task. Idempotent: deleting a missing task is nil.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return wrap("tasks", "delete", err)
}

// ClearTasks removes every task.
func (s *Store) ClearTasks(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM tasks`)
	return wrap("tasks", "clear", err)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*model.Task, error) {
	var task model.Task
	var due sql.NullString
	var done, synced int
	var createdAt, updatedAt string

	if err := row.Scan(&task.ID, &task.Title, &task.Tag, &due, &done,
		&createdAt, &updatedAt, &synced); err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		task.UpdatedAt = t
	}
	task.Due = nullStringToTime(due)
	task.Done = done != 0
	task.Synced = synced != 0

	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
