// Package db provides PostgreSQL database access for Track Tracker.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// UnitOfWork is the scoped write surface available inside WithUnit. Both
// operations run in the same transaction: either the track upsert and its
// snapshot become durable together, or neither does.
type UnitOfWork interface {
	UpsertTrack(ctx context.Context, track *Track) error
	AppendSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// DB wraps a PostgreSQL connection pool. Create one at process start and
// share it; Close it at shutdown.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Tracks returns a TrackRepository.
func (db *DB) Tracks() *TrackRepository {
	return &TrackRepository{pool: db.pool}
}

// Snapshots returns a SnapshotRepository.
func (db *DB) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{pool: db.pool}
}

// WithUnit runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics, so a
// partial write (track without snapshot, or vice versa) is never visible.
func (db *DB) WithUnit(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(txUnit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// txUnit is the transaction-backed UnitOfWork.
type txUnit struct {
	tx pgx.Tx
}

func (u txUnit) UpsertTrack(ctx context.Context, track *Track) error {
	return upsertTrack(ctx, u.tx, track)
}

func (u txUnit) AppendSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return insertSnapshot(ctx, u.tx, snapshot)
}

// Facade methods so the read surface can depend on one narrow interface.

// TrackCount returns the total number of tracks.
func (db *DB) TrackCount(ctx context.Context) (int64, error) {
	return db.Tracks().Count(ctx)
}

// SnapshotCount returns the total number of snapshots.
func (db *DB) SnapshotCount(ctx context.Context) (int64, error) {
	return db.Snapshots().Count(ctx)
}

// TopTracks returns the n most popular tracks.
func (db *DB) TopTracks(ctx context.Context, n int) ([]Track, error) {
	return db.Tracks().TopByPopularity(ctx, n)
}

// AllTracks returns every track.
func (db *DB) AllTracks(ctx context.Context) ([]Track, error) {
	return db.Tracks().All(ctx)
}

// RecentSnapshots returns the n most recent snapshots with owning tracks.
func (db *DB) RecentSnapshots(ctx context.Context, n int) ([]SnapshotWithTrack, error) {
	return db.Snapshots().Recent(ctx, n)
}

// DeleteTrack removes a track and, by cascade, all of its snapshots.
func (db *DB) DeleteTrack(ctx context.Context, id string) error {
	return db.Tracks().Delete(ctx, id)
}
