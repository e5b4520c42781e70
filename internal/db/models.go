package db

import (
	"time"
)

// Track is the canonical record for a music track, keyed by the
// catalog-assigned Spotify track ID.
type Track struct {
	ID          string
	Name        string
	Artist      string
	Album       *string // nullable, absent for singles
	Popularity  *int    // nullable, 0-100 when known
	FirstSeen   time.Time
	LastUpdated time.Time
}

// Snapshot is an immutable point-in-time popularity capture for a track.
// Snapshots are append-only; they are removed only when the owning track
// is deleted.
type Snapshot struct {
	ID         int64
	TrackID    string
	Popularity *int // nullable
	CapturedAt time.Time
}

// SnapshotWithTrack is a snapshot joined with its owning track's display
// fields, so callers don't need a second lookup.
type SnapshotWithTrack struct {
	Snapshot
	TrackName   string
	TrackArtist string
}
