// Package store persists validated listings, collection runs, the
// search cache, and the dead letter queue. Two backends exist: SQLite
// for single-machine use and PostgreSQL for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// ListingFilter specifies criteria for listing queries.
type ListingFilter struct {
	Marketplace   model.Marketplace `json:"marketplace,omitempty"`
	Query         string            `json:"query,omitempty"` // substring match on title
	MinConfidence float64           `json:"min_confidence,omitempty"`
	Limit         int               `json:"limit,omitempty"`
	Offset        int               `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing collection runs.
type RunFilter struct {
	Marketplace  model.Marketplace `json:"marketplace,omitempty"`
	Status       model.RunStatus   `json:"status,omitempty"`
	CreatedAfter time.Time         `json:"created_after,omitempty"`
	Limit        int               `json:"limit,omitempty"`
}

// DLQEntry is a permanently failed collection attempt parked for
// operator inspection and manual replay.
type DLQEntry struct {
	ID           string            `json:"id"`
	Marketplace  model.Marketplace `json:"marketplace"`
	Query        string            `json:"query"`
	Operation    string            `json:"operation"`
	Error        string            `json:"error"`
	Category     string            `json:"category"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	LastFailedAt time.Time         `json:"last_failed_at"`
}

// Store defines the persistence interface for the collection pipeline.
type Store interface {
	// Listings
	UpsertListings(ctx context.Context, listings []model.NormalizedListing) (int64, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]model.NormalizedListing, error)

	// Collection runs
	RecordRun(ctx context.Context, run model.CollectionRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.CollectionRun, error)

	// Search cache
	GetCachedSearch(ctx context.Context, key string) (*model.SearchResult, error)
	SetCachedSearch(ctx context.Context, key string, result *model.SearchResult, ttl time.Duration) error
	DeleteExpiredSearches(ctx context.Context) (int, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry DLQEntry) error
	ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error)
	CountDLQ(ctx context.Context) (int, error)
	RemoveDLQ(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
