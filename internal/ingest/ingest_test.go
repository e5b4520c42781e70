package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lowkeylabs/tracktracker/internal/db"
)

// fakeCatalog is an in-memory Catalog with per-call error injection.
type fakeCatalog struct {
	containers   []Container
	items        map[string][]Item
	details      map[string]*ItemDetail
	discoveryErr error
	listErr      map[string]error
	detailErr    map[string]error
	gotLimit     int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		items:     make(map[string][]Item),
		details:   make(map[string]*ItemDetail),
		listErr:   make(map[string]error),
		detailErr: make(map[string]error),
	}
}

func (c *fakeCatalog) ListNewContainers(_ context.Context, limit int) ([]Container, error) {
	c.gotLimit = limit
	if c.discoveryErr != nil {
		return nil, c.discoveryErr
	}
	if limit < len(c.containers) {
		return c.containers[:limit], nil
	}
	return c.containers, nil
}

func (c *fakeCatalog) ListContainerItems(_ context.Context, containerID string) ([]Item, error) {
	if err := c.listErr[containerID]; err != nil {
		return nil, err
	}
	return c.items[containerID], nil
}

func (c *fakeCatalog) GetItemDetail(_ context.Context, itemID string) (*ItemDetail, error) {
	if err := c.detailErr[itemID]; err != nil {
		return nil, err
	}
	detail, ok := c.details[itemID]
	if !ok {
		return nil, errors.New("unknown item")
	}
	return detail, nil
}

// addAlbum registers a container with one detail-complete item per name.
func (c *fakeCatalog) addAlbum(id, name string, trackIDs ...string) {
	c.containers = append(c.containers, Container{ID: id, Name: name})
	for _, tid := range trackIDs {
		c.items[id] = append(c.items[id], Item{ID: tid, Name: "track " + tid})
		c.details[tid] = &ItemDetail{
			ID:         tid,
			Name:       "track " + tid,
			Artists:    []string{"Artist One", "Artist Two"},
			Popularity: 75,
		}
	}
}

// failingGateway wraps a Memory store and rejects upserts of one track ID,
// simulating a persistence failure inside the unit of work.
type failingGateway struct {
	inner  *db.Memory
	failID string
}

func (g *failingGateway) WithUnit(ctx context.Context, fn func(db.UnitOfWork) error) error {
	return g.inner.WithUnit(ctx, func(u db.UnitOfWork) error {
		return fn(failUnit{UnitOfWork: u, failID: g.failID})
	})
}

type failUnit struct {
	db.UnitOfWork
	failID string
}

func (u failUnit) UpsertTrack(ctx context.Context, t *db.Track) error {
	if t.ID == u.failID {
		return errors.New("connection reset")
	}
	return u.UnitOfWork.UpsertTrack(ctx, t)
}

// fakeArchive records keys; optionally fails every put.
type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) PutJSON(key string, _ any) error {
	if a.err != nil {
		return a.err
	}
	a.keys = append(a.keys, key)
	return nil
}

func TestRunHappyPath(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addAlbum("album1", "Test Album", "t1", "t2")
	catalog.addAlbum("album2", "Another Album", "t3", "t4")
	store := db.NewMemory()

	svc := New(catalog, store)
	result, err := svc.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if catalog.gotLimit != 2 {
		t.Errorf("discovery limit = %d, want 2", catalog.gotLimit)
	}
	want := Result{TracksProcessed: 4, SnapshotsCreated: 4, Errors: 0}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}

	// The canonical rows and snapshots landed.
	tracks, _ := store.TrackCount(context.Background())
	snaps, _ := store.SnapshotCount(context.Background())
	if tracks != 4 || snaps != 4 {
		t.Errorf("store has %d tracks, %d snapshots, want 4 and 4", tracks, snaps)
	}

	track, err := store.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if track.Artist != "Artist One, Artist Two" {
		t.Errorf("artist = %q, want joined artist names", track.Artist)
	}
	if track.Album == nil || *track.Album != "Test Album" {
		t.Errorf("album = %v, want container name", track.Album)
	}
	if track.Popularity == nil || *track.Popularity != 75 {
		t.Errorf("popularity = %v, want 75", track.Popularity)
	}
}

func TestRunDiscoveryFailureIsFatal(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.discoveryErr = errors.New("rate limited")

	svc := New(catalog, db.NewMemory())
	result, err := svc.Run(context.Background(), 5)
	if err == nil {
		t.Fatal("expected error from failed discovery")
	}
	if result != nil {
		t.Errorf("result = %+v, want nil (no partial result)", result)
	}
}

func TestRunContainerListingFailureIsolated(t *testing.T) {
	// Container A lists 2 items; container B's listing call fails.
	catalog := newFakeCatalog()
	catalog.addAlbum("a", "Album A", "t1", "t2")
	catalog.addAlbum("b", "Album B", "t3")
	catalog.listErr["b"] = errors.New("API error")

	svc := New(catalog, db.NewMemory())
	result, err := svc.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Result{TracksProcessed: 2, SnapshotsCreated: 2, Errors: 1}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}
}

func TestRunAllContainersFail(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addAlbum("a", "Album A", "t1")
	catalog.addAlbum("b", "Album B", "t2")
	catalog.listErr["a"] = errors.New("API error")
	catalog.listErr["b"] = errors.New("API error")

	svc := New(catalog, db.NewMemory())
	result, err := svc.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Result{TracksProcessed: 0, SnapshotsCreated: 0, Errors: 2}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}
}

func TestDetailFailurePolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy FailurePolicy
		want   Result
	}{
		{
			// The second item's failure counts once against the
			// container and abandons the third item.
			name:   "isolate containers",
			policy: IsolateContainers,
			want:   Result{TracksProcessed: 1, SnapshotsCreated: 1, Errors: 1},
		},
		{
			// The second item's failure counts alone; the third
			// item still lands.
			name:   "isolate items",
			policy: IsolateItems,
			want:   Result{TracksProcessed: 2, SnapshotsCreated: 2, Errors: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := newFakeCatalog()
			catalog.addAlbum("a", "Album A", "t1", "t2", "t3")
			catalog.detailErr["t2"] = errors.New("API error")

			svc := New(catalog, db.NewMemory(), WithFailurePolicy(tt.policy))
			result, err := svc.Run(context.Background(), 1)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if *result != tt.want {
				t.Errorf("result = %+v, want %+v", *result, tt.want)
			}
		})
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addAlbum("a", "Album A", "t1", "t2", "t3")
	store := db.NewMemory()
	gateway := &failingGateway{inner: store, failID: "t2"}

	svc := New(catalog, gateway, WithFailurePolicy(IsolateItems))
	result, err := svc.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Result{TracksProcessed: 2, SnapshotsCreated: 2, Errors: 1}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}

	// The failed item left no partial write: no track, no orphan snapshot.
	if _, err := store.Get(context.Background(), "t2"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("t2 lookup error = %v, want ErrNotFound", err)
	}
	snaps, _ := store.SnapshotCount(context.Background())
	if snaps != 2 {
		t.Errorf("snapshot count = %d, want 2", snaps)
	}
}

func TestRerunAppendsSnapshots(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addAlbum("a", "Album A", "t1")
	store := db.NewMemory()

	svc := New(catalog, store)
	for i := 0; i < 2; i++ {
		if _, err := svc.Run(context.Background(), 1); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	// Track upsert is idempotent; snapshots are a time series.
	tracks, _ := store.TrackCount(context.Background())
	snaps, _ := store.SnapshotCount(context.Background())
	if tracks != 1 {
		t.Errorf("track count = %d, want 1", tracks)
	}
	if snaps != 2 {
		t.Errorf("snapshot count = %d, want 2", snaps)
	}
}

func TestArchiveReceivesRawPayloads(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addAlbum("a", "Album A", "t1", "t2")
	archive := &fakeArchive{}

	svc := New(catalog, db.NewMemory(), WithArchive(archive))
	if _, err := svc.Run(context.Background(), 1); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One discovery page plus one payload per item detail.
	if len(archive.keys) != 3 {
		t.Fatalf("archived %d payloads, want 3: %v", len(archive.keys), archive.keys)
	}
	if !strings.HasPrefix(archive.keys[0], "runs/") || !strings.HasSuffix(archive.keys[0], "new_releases.json") {
		t.Errorf("discovery key = %q, want runs/<date>/<run>/new_releases.json", archive.keys[0])
	}
	if !strings.HasSuffix(archive.keys[1], "tracks/t1.json") {
		t.Errorf("detail key = %q, want .../tracks/t1.json", archive.keys[1])
	}
}

func TestArchiveFailureDoesNotAffectCounters(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.addAlbum("a", "Album A", "t1", "t2")
	archive := &fakeArchive{err: errors.New("bucket gone")}

	svc := New(catalog, db.NewMemory(), WithArchive(archive))
	result, err := svc.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Result{TracksProcessed: 2, SnapshotsCreated: 2, Errors: 0}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}
}
