package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CheckLog is one check of one target in one run.
type CheckLog struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	TargetID   string    `json:"target_id"`
	Status     string    `json:"status"`
	Digest     string    `json:"digest,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CheckedAt  time.Time `json:"checked_at"`
}

// LogCheck appends a check record.
func (s *Store) LogCheck(ctx context.Context, entry *CheckLog) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO check_log (id, run_id, target_id, status, digest,
		error_message, duration_ms, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.TargetID, entry.Status, entry.Digest,
		entry.Error, entry.DurationMs, millis(entry.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("store: log check %s: %w", entry.TargetID, err)
	}
	return nil
}

// LastStatus returns the status of the most recent check of targetID, or
// "" when the target has never been checked.
func (s *Store) LastStatus(ctx context.Context, targetID string) (string, error) {
	var status string
	err := s.DB.QueryRowContext(ctx,
		`SELECT status FROM check_log WHERE target_id = ?
		ORDER BY checked_at DESC, rowid DESC LIMIT 1`, targetID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: last status %s: %w", targetID, err)
	}
	return status, nil
}

// History returns check records for targetID, newest first.
func (s *Store) History(ctx context.Context, targetID string, limit int) ([]*CheckLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, run_id, target_id, status, digest, error_message,
		duration_ms, checked_at
		FROM check_log WHERE target_id = ?
		ORDER BY checked_at DESC, rowid DESC LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", targetID, err)
	}
	defer rows.Close()

	var result []*CheckLog
	for rows.Next() {
		var (
			e  CheckLog
			at int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.TargetID, &e.Status, &e.Digest,
			&e.Error, &e.DurationMs, &at); err != nil {
			return nil, fmt.Errorf("scan check log: %w", err)
		}
		e.CheckedAt = fromMillis(at)
		result = append(result, &e)
	}
	return result, rows.Err()
}
