package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository handles snapshot database operations.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// insertSnapshot appends a snapshot row inside tx. Snapshots are never
// updated after creation; the capture time is assigned here.
func insertSnapshot(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	query := `
		INSERT INTO track_snapshots (track_id, popularity, captured_at)
		VALUES ($1, $2, NOW())
		RETURNING id, captured_at
	`
	err := tx.QueryRow(ctx, query,
		snapshot.TrackID,
		snapshot.Popularity,
	).Scan(&snapshot.ID, &snapshot.CapturedAt)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// Count returns the total number of snapshots.
func (r *SnapshotRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM track_snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return count, nil
}

// CountForTrack returns the number of snapshots for one track.
func (r *SnapshotRepository) CountForTrack(ctx context.Context, trackID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM track_snapshots WHERE track_id = $1`, trackID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting snapshots for track: %w", err)
	}
	return count, nil
}

// Recent returns the n most recent snapshots, newest first, each joined
// with its owning track's name and artist so callers don't need a second
// round trip. Ties on capture time break by snapshot ID descending, so
// later inserts win.
func (r *SnapshotRepository) Recent(ctx context.Context, n int) ([]SnapshotWithTrack, error) {
	query := `
		SELECT s.id, s.track_id, s.popularity, s.captured_at, t.name, t.artist
		FROM track_snapshots s
		JOIN tracks t ON t.id = s.track_id
		ORDER BY s.captured_at DESC, s.id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("querying recent snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []SnapshotWithTrack
	for rows.Next() {
		var s SnapshotWithTrack
		if err := rows.Scan(
			&s.ID,
			&s.TrackID,
			&s.Popularity,
			&s.CapturedAt,
			&s.TrackName,
			&s.TrackArtist,
		); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// ForTrack returns all snapshots for a track, oldest first.
func (r *SnapshotRepository) ForTrack(ctx context.Context, trackID string) ([]Snapshot, error) {
	query := `
		SELECT id, track_id, popularity, captured_at
		FROM track_snapshots
		WHERE track_id = $1
		ORDER BY captured_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, trackID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots for track: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.TrackID, &s.Popularity, &s.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
