package store

import "database/sql"

// Schema holds one snapshot per target and the append-only check log.
// Timestamps are Unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    target_id       TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    content         TEXT NOT NULL,
    digest          TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    link            TEXT NOT NULL DEFAULT '',
    first_seen_at   INTEGER NOT NULL,
    last_checked_at INTEGER NOT NULL,
    last_changed_at INTEGER NOT NULL
);

-- One row per target per run, failures included. Not keyed to snapshots:
-- a target that never extracted successfully still has a history.
CREATE TABLE IF NOT EXISTS check_log (
    id            TEXT PRIMARY KEY,
    run_id        TEXT NOT NULL,
    target_id     TEXT NOT NULL,
    status        TEXT NOT NULL,
    digest        TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    checked_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_log_target ON check_log(target_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_log_run ON check_log(run_id);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
