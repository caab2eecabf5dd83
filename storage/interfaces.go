package storage

import (
	"context"

	"redbus-scraper/models"
)

// Loader is the interface any persistence backend must satisfy. Load must
// be idempotent: re-ingesting previously seen reviews is a no-op counted as
// duplicates, and a bus's aggregates are recomputed transactionally with
// its review writes.
type Loader interface {
	Load(ctx context.Context, listings []*models.BusListing, reviews []*models.Review) (*models.LoadReport, error)
	Close() error
}

// CheckpointStore persists the per-route traversal cursor. Advance is
// called only after the page at that cursor has been durably loaded.
type CheckpointStore interface {
	Checkpoint(routeKey string) (*models.Checkpoint, error)
	Advance(routeKey string, pageIndex int) error
}
