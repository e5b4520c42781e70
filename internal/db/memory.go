package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory store implementing the same write and query
// surface as DB. It backs tests and local development without a running
// Postgres, and it honors the same contract: upsert-by-key with
// first-seen-once semantics, append-only snapshots with a valid track
// reference, cascade on track delete, and all-or-nothing units of work.
type Memory struct {
	mu        sync.RWMutex
	tracks    map[string]*Track
	snapshots []*Snapshot
	nextID    int64
	now       func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tracks: make(map[string]*Track),
		nextID: 1,
		now:    time.Now,
	}
}

// SetClock overrides the clock used for first_seen, last_updated and
// captured_at. Intended for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// WithUnit runs fn against a staged view of the store. Changes apply only
// when fn returns nil; on error everything fn wrote is discarded.
func (m *Memory) WithUnit(ctx context.Context, fn func(UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	unit := &memUnit{store: m, staged: make(map[string]*Track)}
	if err := fn(unit); err != nil {
		return err
	}
	unit.apply()
	return nil
}

// memUnit stages writes until apply.
type memUnit struct {
	store      *Memory
	staged     map[string]*Track
	newRecords []*Snapshot
}

func (u *memUnit) UpsertTrack(_ context.Context, track *Track) error {
	now := u.store.now()

	existing := u.staged[track.ID]
	if existing == nil {
		existing = u.store.tracks[track.ID]
	}

	if existing != nil {
		track.FirstSeen = existing.FirstSeen
	} else {
		track.FirstSeen = now
	}
	track.LastUpdated = now

	copied := *track
	u.staged[track.ID] = &copied
	return nil
}

func (u *memUnit) AppendSnapshot(_ context.Context, snapshot *Snapshot) error {
	if u.staged[snapshot.TrackID] == nil && u.store.tracks[snapshot.TrackID] == nil {
		return fmt.Errorf("appending snapshot: no track with id %q", snapshot.TrackID)
	}

	snapshot.ID = u.store.nextID + int64(len(u.newRecords))
	snapshot.CapturedAt = u.store.now()

	copied := *snapshot
	u.newRecords = append(u.newRecords, &copied)
	return nil
}

func (u *memUnit) apply() {
	for id, track := range u.staged {
		u.store.tracks[id] = track
	}
	u.store.snapshots = append(u.store.snapshots, u.newRecords...)
	u.store.nextID += int64(len(u.newRecords))
}

// Get retrieves a track by ID. Returns ErrNotFound if absent.
func (m *Memory) Get(_ context.Context, id string) (*Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	track, ok := m.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *track
	return &copied, nil
}

// TrackCount returns the total number of tracks.
func (m *Memory) TrackCount(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.tracks)), nil
}

// SnapshotCount returns the total number of snapshots.
func (m *Memory) SnapshotCount(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.snapshots)), nil
}

// SnapshotCountForTrack returns the number of snapshots owned by one track.
func (m *Memory) SnapshotCountForTrack(_ context.Context, trackID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, s := range m.snapshots {
		if s.TrackID == trackID {
			count++
		}
	}
	return count, nil
}

// TopTracks returns the n most popular tracks, ties broken by ID.
// Tracks without a popularity score are excluded.
func (m *Memory) TopTracks(_ context.Context, n int) ([]Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []Track
	for _, t := range m.tracks {
		if t.Popularity != nil {
			scored = append(scored, *t)
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if *scored[i].Popularity != *scored[j].Popularity {
			return *scored[i].Popularity > *scored[j].Popularity
		}
		return scored[i].ID < scored[j].ID
	})

	if n < len(scored) {
		scored = scored[:n]
	}
	return scored, nil
}

// AllTracks returns every track ordered by first_seen then ID.
func (m *Memory) AllTracks(_ context.Context) ([]Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tracks := make([]Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		tracks = append(tracks, *t)
	}
	sort.Slice(tracks, func(i, j int) bool {
		if !tracks[i].FirstSeen.Equal(tracks[j].FirstSeen) {
			return tracks[i].FirstSeen.Before(tracks[j].FirstSeen)
		}
		return tracks[i].ID < tracks[j].ID
	})
	return tracks, nil
}

// RecentSnapshots returns the n most recent snapshots with their owning
// track inline, newest first; capture-time ties break by snapshot ID
// descending.
func (m *Memory) RecentSnapshots(_ context.Context, n int) ([]SnapshotWithTrack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := make([]SnapshotWithTrack, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		track := m.tracks[s.TrackID]
		if track == nil {
			continue
		}
		joined = append(joined, SnapshotWithTrack{
			Snapshot:    *s,
			TrackName:   track.Name,
			TrackArtist: track.Artist,
		})
	}
	sort.Slice(joined, func(i, j int) bool {
		if !joined[i].CapturedAt.Equal(joined[j].CapturedAt) {
			return joined[i].CapturedAt.After(joined[j].CapturedAt)
		}
		return joined[i].ID > joined[j].ID
	})

	if n < len(joined) {
		joined = joined[:n]
	}
	return joined, nil
}

// DeleteTrack removes a track and cascades to its snapshots. Returns
// ErrNotFound if no track has the given ID.
func (m *Memory) DeleteTrack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tracks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tracks, id)

	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if s.TrackID != id {
			kept = append(kept, s)
		}
	}
	m.snapshots = kept
	return nil
}
