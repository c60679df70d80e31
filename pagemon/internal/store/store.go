// Package store persists target snapshots and the check log in SQLite.
//
// Each scheduled invocation is a fresh process, so everything the differ
// needs between runs lives here: one snapshot row per target, keyed by the
// registry id, plus one check_log row per target per run.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/pagemon/dbopen"

	_ "modernc.org/sqlite"
)

// Check statuses recorded in check_log.
const (
	StatusFirstSeen       = "first_seen"
	StatusChanged         = "changed"
	StatusUnchanged       = "unchanged"
	StatusFetchError      = "fetch_error"
	StatusParseError      = "parse_error"
	StatusSelectorMissing = "selector_missing"
)

// Store wraps the snapshot database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
// The caller applies the schema.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (creating if needed) the SQLite file at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
