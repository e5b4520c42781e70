package ingest

import (
	"context"

	"github.com/lowkeylabs/tracktracker/internal/db"
)

// Container is a top-level catalog entry (an album) returned by discovery.
type Container struct {
	ID   string
	Name string
}

// Item is a member of a container as returned by the listing call. The
// listing payload carries no artist or popularity data; those require a
// detail fetch.
type Item struct {
	ID   string
	Name string
}

// ItemDetail is the full record for a single item.
type ItemDetail struct {
	ID         string
	Name       string
	Artists    []string
	Popularity int
}

// Catalog is the streaming-service catalog API consumed by the pipeline.
// Implementations may fail any call with an error; the pipeline decides
// what is fatal and what is isolated.
type Catalog interface {
	ListNewContainers(ctx context.Context, limit int) ([]Container, error)
	ListContainerItems(ctx context.Context, containerID string) ([]Item, error)
	GetItemDetail(ctx context.Context, itemID string) (*ItemDetail, error)
}

// Gateway provides scoped units of work over the track store. The unit
// commits when the callback returns nil and rolls back otherwise.
type Gateway interface {
	WithUnit(ctx context.Context, fn func(db.UnitOfWork) error) error
}

// Archive persists raw payloads for audit and replay. Archive failures
// never affect ingestion accounting.
type Archive interface {
	PutJSON(key string, v any) error
}
