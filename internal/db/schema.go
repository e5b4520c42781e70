package db

import (
	"context"
	"fmt"
)

// schema holds the DDL for the Track Tracker tables. Statements are
// idempotent, so InitSchema is safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	artist       TEXT NOT NULL,
	album        TEXT,
	popularity   INT,
	first_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS track_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	track_id    TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
	popularity  INT,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS ix_tracks_popularity ON tracks (popularity);
CREATE INDEX IF NOT EXISTS ix_tracks_artist ON tracks (artist);
CREATE INDEX IF NOT EXISTS ix_tracks_first_seen ON tracks (first_seen);
CREATE INDEX IF NOT EXISTS ix_snapshots_track_captured ON track_snapshots (track_id, captured_at);
CREATE INDEX IF NOT EXISTS ix_snapshots_captured ON track_snapshots (captured_at);
`

// InitSchema creates the tables and indexes if they don't exist.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
