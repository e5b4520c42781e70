// Package ingest implements the catalog ingestion pipeline: it walks one
// page of newly released albums, fans out to per-track detail fetches, and
// records each track as a canonical row plus an append-only popularity
// snapshot.
package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lowkeylabs/tracktracker/internal/db"
)

// FailurePolicy names how failures below the container level are isolated.
type FailurePolicy int

const (
	// IsolateContainers counts one error per failed container: a
	// detail-fetch or persistence failure abandons the container's
	// remaining items. This matches the historical behavior.
	IsolateContainers FailurePolicy = iota

	// IsolateItems counts one error per failed item and keeps processing
	// the rest of the container.
	IsolateItems
)

func (p FailurePolicy) String() string {
	switch p {
	case IsolateContainers:
		return "containers"
	case IsolateItems:
		return "items"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// Result is the outcome summary of one ingestion run. Under correct
// operation SnapshotsCreated always equals TracksProcessed; the counters
// are kept separate so an accounting bug would be visible.
type Result struct {
	TracksProcessed  int
	SnapshotsCreated int
	Errors           int
}

// Service orchestrates ingestion runs. Processing is strictly sequential;
// the only state shared across containers is the run's Result.
type Service struct {
	catalog Catalog
	gateway Gateway
	archive Archive
	policy  FailurePolicy
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArchive enables raw-payload archiving for each run.
func WithArchive(a Archive) Option {
	return func(s *Service) {
		s.archive = a
	}
}

// WithFailurePolicy sets the isolation policy for detail-fetch and
// persistence failures.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithClock overrides the clock used for archive keys. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates an ingestion service.
func New(catalog Catalog, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		gateway: gateway,
		policy:  IsolateContainers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ingests one page of up to pageLimit newly released containers.
// A discovery failure is fatal and produces no result. Failures below
// discovery are counted per the service's FailurePolicy and never abort
// the run. The result is accumulated in place and returned once at the
// end; callers never see a partial result.
func (s *Service) Run(ctx context.Context, pageLimit int) (*Result, error) {
	runID := uuid.New().String()

	containers, err := s.catalog.ListNewContainers(ctx, pageLimit)
	if err != nil {
		return nil, fmt.Errorf("listing new containers: %w", err)
	}

	s.archiveJSON(s.runKey(runID, "new_releases.json"), containers)

	result := &Result{}
	for _, container := range containers {
		s.ingestContainer(ctx, runID, container, result)
	}

	log.Printf("ingestion run %s: %d tracks, %d snapshots, %d errors",
		runID, result.TracksProcessed, result.SnapshotsCreated, result.Errors)
	return result, nil
}

// ingestContainer lists a container's items and ingests each one.
// Containers are processed in discovery order and items in listing order.
func (s *Service) ingestContainer(ctx context.Context, runID string, container Container, result *Result) {
	items, err := s.catalog.ListContainerItems(ctx, container.ID)
	if err != nil {
		log.Printf("ingest: listing items for container %s: %v", container.ID, err)
		result.Errors++
		return
	}

	for _, item := range items {
		if err := s.ingestItem(ctx, runID, container, item); err != nil {
			log.Printf("ingest: container %s item %s: %v", container.ID, item.ID, err)
			result.Errors++
			if s.policy == IsolateContainers {
				// One error already counted for this container;
				// its remaining items are abandoned.
				return
			}
			continue
		}
		// Counted together, only after the unit of work committed.
		result.TracksProcessed++
		result.SnapshotsCreated++
	}
}

// ingestItem fetches an item's detail and writes the track upsert plus its
// snapshot in a single unit of work.
func (s *Service) ingestItem(ctx context.Context, runID string, container Container, item Item) error {
	detail, err := s.catalog.GetItemDetail(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("fetching item detail: %w", err)
	}

	s.archiveJSON(s.runKey(runID, "tracks/"+detail.ID+".json"), detail)

	popularity := detail.Popularity
	track := db.Track{
		ID:         detail.ID,
		Name:       detail.Name,
		Artist:     strings.Join(detail.Artists, ", "),
		Popularity: &popularity,
	}
	if container.Name != "" {
		album := container.Name
		track.Album = &album
	}

	return s.gateway.WithUnit(ctx, func(u db.UnitOfWork) error {
		if err := u.UpsertTrack(ctx, &track); err != nil {
			return err
		}
		return u.AppendSnapshot(ctx, &db.Snapshot{
			TrackID:    track.ID,
			Popularity: track.Popularity,
		})
	})
}

func (s *Service) runKey(runID, suffix string) string {
	return fmt.Sprintf("runs/%s/%s/%s", s.now().UTC().Format("2006-01-02"), runID, suffix)
}

// archiveJSON persists a raw payload when an archive is configured.
// Archive failures are logged and swallowed; they never reach the
// ingestion counters.
func (s *Service) archiveJSON(key string, v any) {
	if s.archive == nil {
		return
	}
	if err := s.archive.PutJSON(key, v); err != nil {
		log.Printf("ingest: archiving %s: %v", key, err)
	}
}
