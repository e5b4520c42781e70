package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// upsertTrack creates or updates a track inside tx. The insert sets
// first_seen once; the conflict branch overwrites the mutable fields and
// bumps last_updated but never touches first_seen, so repeated ingestion
// of the same ID keeps a single row with its original first-seen time.
func upsertTrack(ctx context.Context, tx pgx.Tx, track *Track) error {
	query := `
		INSERT INTO tracks (id, name, artist, album, popularity, first_seen, last_updated)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			artist = EXCLUDED.artist,
			album = EXCLUDED.album,
			popularity = EXCLUDED.popularity,
			last_updated = NOW()
		RETURNING first_seen, last_updated
	`
	err := tx.QueryRow(ctx, query,
		track.ID,
		track.Name,
		track.Artist,
		track.Album,
		track.Popularity,
	).Scan(&track.FirstSeen, &track.LastUpdated)
	if err != nil {
		return fmt.Errorf("upserting track: %w", err)
	}
	return nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*Track, error) {
	query := `
		SELECT id, name, artist, album, popularity, first_seen, last_updated
		FROM tracks
		WHERE id = $1
	`
	var track Track
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&track.ID,
		&track.Name,
		&track.Artist,
		&track.Album,
		&track.Popularity,
		&track.FirstSeen,
		&track.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &track, nil
}

// Count returns the total number of tracks.
func (r *TrackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting tracks: %w", err)
	}
	return count, nil
}

// TopByPopularity returns the n most popular tracks, most popular first.
// Ties break by ID so the ordering is deterministic; tracks with no
// popularity score are excluded.
func (r *TrackRepository) TopByPopularity(ctx context.Context, n int) ([]Track, error) {
	query := `
		SELECT id, name, artist, album, popularity, first_seen, last_updated
		FROM tracks
		WHERE popularity IS NOT NULL
		ORDER BY popularity DESC, id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("querying top tracks: %w", err)
	}
	defer rows.Close()

	return scanTracks(rows)
}

// All returns every track, ordered by first_seen then ID.
func (r *TrackRepository) All(ctx context.Context) ([]Track, error) {
	query := `
		SELECT id, name, artist, album, popularity, first_seen, last_updated
		FROM tracks
		ORDER BY first_seen ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	return scanTracks(rows)
}

// Delete removes a track. Its snapshots go with it via the foreign-key
// cascade. Returns ErrNotFound if no track has the given ID.
func (r *TrackRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting track: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTracks(rows pgx.Rows) ([]Track, error) {
	var tracks []Track
	for rows.Next() {
		var track Track
		if err := rows.Scan(
			&track.ID,
			&track.Name,
			&track.Artist,
			&track.Album,
			&track.Popularity,
			&track.FirstSeen,
			&track.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}
