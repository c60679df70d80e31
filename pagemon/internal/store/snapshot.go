package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/pagemon/extract"
)

// Snapshot is the last representation recorded for a target.
type Snapshot struct {
	TargetID      string       `json:"target_id"`
	Kind          extract.Kind `json:"kind"`
	Content       string       `json:"content"`
	Digest        string       `json:"digest"`
	Title         string       `json:"title,omitempty"`
	Link          string       `json:"link,omitempty"`
	FirstSeenAt   time.Time    `json:"first_seen_at"`
	LastCheckedAt time.Time    `json:"last_checked_at"`
	LastChangedAt time.Time    `json:"last_changed_at"`
}

const snapshotColumns = `target_id, kind, content, digest, title, link,
	first_seen_at, last_checked_at, last_changed_at`

// Load returns the snapshot for targetID, or nil when none exists.
func (s *Store) Load(ctx context.Context, targetID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE target_id = ?`, targetID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", targetID, err)
	}
	return snap, nil
}

// Save records a successful extraction for targetID.
//
// When changed is true (first seen or content differs), content, digest,
// title, link and last_changed_at are replaced; first_seen_at is kept if
// the row already existed. When changed is false only last_checked_at
// moves. An unchanged save for a missing row falls back to an insert.
func (s *Store) Save(ctx context.Context, targetID string, rep extract.Representation, checkedAt time.Time, changed bool) error {
	at := millis(checkedAt)

	if !changed {
		res, err := s.DB.ExecContext(ctx,
			`UPDATE snapshots SET last_checked_at = ? WHERE target_id = ?`, at, targetID)
		if err != nil {
			return fmt.Errorf("store: touch %s: %w", targetID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			digest = excluded.digest,
			title = excluded.title,
			link = excluded.link,
			last_checked_at = excluded.last_checked_at,
			last_changed_at = excluded.last_changed_at`,
		targetID, string(rep.Kind), rep.Content, rep.Digest, rep.Title, rep.Link,
		at, at, at,
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", targetID, err)
	}
	return nil
}

// List returns all snapshots ordered by target id.
func (s *Store) List(ctx context.Context) ([]*Snapshot, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots ORDER BY target_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes the snapshot and check history of targetID. The next run
// treats the target as first seen. Reports whether a snapshot existed.
func (s *Store) Delete(ctx context.Context, targetID string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", targetID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE target_id = ?`, targetID)
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", targetID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM check_log WHERE target_id = ?`, targetID); err != nil {
		return false, fmt.Errorf("store: delete %s history: %w", targetID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: delete %s: %w", targetID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	var (
		snap                        Snapshot
		kind                        string
		firstSeen, checked, changed int64
	)
	if err := sc.Scan(&snap.TargetID, &kind, &snap.Content, &snap.Digest,
		&snap.Title, &snap.Link, &firstSeen, &checked, &changed); err != nil {
		return nil, err
	}
	snap.Kind = extract.Kind(kind)
	snap.FirstSeenAt = fromMillis(firstSeen)
	snap.LastCheckedAt = fromMillis(checked)
	snap.LastChangedAt = fromMillis(changed)
	return &snap, nil
}
