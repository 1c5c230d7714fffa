package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnqueueOp appends a mutation to the offline queue and returns its id.
// The payload is marshalled to JSON as-is.
func (s *Store) EnqueueOp(ctx context.Context, kind OpKind, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode op payload: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ops (kind, payload, enqueued_at) VALUES (?, ?, ?)
	`, string(kind), string(data), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue op: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read op id: %w", err)
	}
	return id, nil
}

// PendingOps returns queued mutations oldest first, up to limit.
// A limit of 0 means no limit.
func (s *Store) PendingOps(ctx context.Context, limit int) ([]Op, error) {
	query := `SELECT op_id, kind, payload, enqueued_at, attempts, last_error FROM ops ORDER BY op_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops: %w", err)
	}
	defer rows.Close()

	var ops []Op
	for rows.Next() {
		var op Op
		var kind, payload string
		if err := rows.Scan(&op.OpID, &kind, &payload, &op.EnqueuedAt, &op.Attempts, &op.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan op: %w", err)
		}
		op.Kind = OpKind(kind)
		op.Payload = json.RawMessage(payload)
		op.EnqueuedAt = op.EnqueuedAt.UTC()
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// AckOp removes a delivered (or permanently rejected) op from the queue.
func (s *Store) AckOp(ctx context.Context, opID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ops WHERE op_id = ?`, opID); err != nil {
		return fmt.Errorf("failed to ack op: %w", err)
	}
	return nil
}

// FailOp records a delivery failure so the next flush can see how often
// and why an op has bounced. The op stays queued.
func (s *Store) FailOp(ctx context.Context, opID int64, cause string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ops SET attempts = attempts + 1, last_error = ? WHERE op_id = ?
	`, cause, opID)
	if err != nil {
		return fmt.Errorf("failed to record op failure: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("op %d not found", opID)
	}
	return nil
}

// OpCount returns the number of queued mutations.
func (s *Store) OpCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ops: %w", err)
	}
	return n, nil
}

// PruneOps deletes queue entries enqueued before the cutoff and returns
// how many were dropped. A safety valve against unbounded growth when the
// server stays unreachable for a long time.
func (s *Store) PruneOps(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ops WHERE enqueued_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune ops: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows, nil
}

// SetMeta stores a key-value pair, overwriting any previous value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns the stored value for key, or "" if it was never set.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}
