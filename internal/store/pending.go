package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/localfirst/tasksync/internal/model"
)

// AppendPending persists a new pending operation. Append-only: an
// existing ID is an error, never an overwrite.
func (s *Store) AppendPending(ctx context.Context, op *model.PendingOperation) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	if err := op.Validate(); err != nil {
		return fmt.Errorf("invalid pending operation: %w", err)
	}

	query := `
	INSERT INTO pending_sync (id, operation, entity_type, data, timestamp, retry_count, max_retries)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = conn.ExecContext(ctx, query,
		op.ID,
		string(op.Op),
		op.EntityType,
		string(op.Data),
		op.Timestamp.Format(time.RFC3339Nano),
		op.RetryCount,
		op.MaxRetries,
	)
	return wrap("pending_sync", "append", err)
}

// ListPending returns the pending queue in insertion order. The
// timestamp index exists for ad-hoc queries; enumeration deliberately
// follows rowid so multiple mutations of one entity replay in order.
func (s *Store) ListPending(ctx context.Context) ([]*model.PendingOperation, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
	SELECT id, operation, entity_type, data, timestamp, retry_count, max_retries
	FROM pending_sync ORDER BY rowid ASC`)
	if err != nil {
		return nil, wrap("pending_sync", "list", err)
	}
	defer rows.Close()

	var ops []*model.PendingOperation
	for rows.Next() {
		op, err := scanPending(rows)
		if err != nil {
			return nil, wrap("pending_sync", "scan", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("pending_sync", "list", err)
	}
	return ops, nil
}

// CountPending returns the number of queued operations.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	var count int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_sync`).Scan(&count)
	if err != nil {
		return 0, wrap("pending_sync", "count", err)
	}
	return count, nil
}

// UpdatePendingRetry writes back an incremented retry counter.
func (s *Store) UpdatePendingRetry(ctx context.Context, id string, retryCount int) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx,
		`UPDATE pending_sync SET retry_count = ? WHERE id = ?`, retryCount, id)
	return wrap("pending_sync", "update", err)
}

// DeletePending removes an acknowledged operation. Idempotent.
func (s *Store) DeletePending(ctx context.Context, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM pending_sync WHERE id = ?`, id)
	return wrap("pending_sync", "delete", err)
}

// ClearPending removes the entire queue.
func (s *Store) ClearPending(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM pending_sync`)
	return wrap("pending_sync", "clear", err)
}

// MoveToDeadLetter moves an exhausted operation out of the pending
// queue into the dead-letter collection in one transaction, recording
// the time it was given up on.
func (s *Store) MoveToDeadLetter(ctx context.Context, op *model.PendingOperation) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("dead_letter", "move", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO dead_letter (id, operation, entity_type, data, timestamp, retry_count, max_retries, failed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID,
		string(op.Op),
		op.EntityType,
		string(op.Data),
		op.Timestamp.Format(time.RFC3339Nano),
		op.RetryCount,
		op.MaxRetries,
		time.Now().Format(time.RFC3339Nano),
	); err != nil {
		return wrap("dead_letter", "move", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_sync WHERE id = ?`, op.ID); err != nil {
		return wrap("dead_letter", "move", err)
	}

	return wrap("dead_letter", "move", tx.Commit())
}

// ListDeadLetters returns the dead-letter collection, newest failures last.
func (s *Store) ListDeadLetters(ctx context.Context) ([]*model.PendingOperation, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
	SELECT id, operation, entity_type, data, timestamp, retry_count, max_retries
	FROM dead_letter ORDER BY failed_at ASC`)
	if err != nil {
		return nil, wrap("dead_letter", "list", err)
	}
	defer rows.Close()

	var ops []*model.PendingOperation
	for rows.Next() {
		op, err := scanPending(rows)
		if err != nil {
			return nil, wrap("dead_letter", "scan", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("dead_letter", "list", err)
	}
	return ops, nil
}

// RequeueDeadLetter moves a dead-letter entry back into the pending
// queue with a reset retry counter, in one transaction. Returns
// ErrNotFound if the entry does not exist.
func (s *Store) RequeueDeadLetter(ctx context.Context, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("dead_letter", "requeue", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO pending_sync (id, operation, entity_type, data, timestamp, retry_count, max_retries)
	SELECT id, operation, entity_type, data, timestamp, 0, max_retries
	FROM dead_letter WHERE id = ?`, id)
	if err != nil {
		return wrap("dead_letter", "requeue", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dead_letter WHERE id = ?`, id); err != nil {
		return wrap("dead_letter", "requeue", err)
	}

	return wrap("dead_letter", "requeue", tx.Commit())
}

// DeleteDeadLetter discards a dead-letter entry for good. Idempotent.
func (s *Store) DeleteDeadLetter(ctx context.Context, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM dead_letter WHERE id = ?`, id)
	return wrap("dead_letter", "delete", err)
}

func scanPending(rows *sql.Rows) (*model.PendingOperation, error) {
	var op model.PendingOperation
	var opKind, data, timestamp string

	if err := rows.Scan(&op.ID, &opKind, &op.EntityType, &data,
		&timestamp, &op.RetryCount, &op.MaxRetries); err != nil {
		return nil, err
	}

	op.Op = model.Op(opKind)
	if data != "" {
		op.Data = []byte(data)
	}
	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		op.Timestamp = t
	}
	return &op, nil
}
