package model

import (
	"time"
)

// SourceStatus describes how one marketplace fared within a search.
type SourceStatus string

const (
	SourceSucceeded   SourceStatus = "succeeded"
	SourceFailed      SourceStatus = "failed"
	SourceSkippedOpen SourceStatus = "skipped_circuit_open"
)

// SearchOptions tune a single collection search.
type SearchOptions struct {
	MaxResults          int           `json:"max_results,omitempty"`
	Timeout             time.Duration `json:"timeout,omitempty"`
	IncludeSoldListings bool          `json:"include_sold_listings,omitempty"`
}

// SourceOutcome is the per-marketplace entry in a search aggregate.
type SourceOutcome struct {
	Status   SourceStatus  `json:"status"`
	Listings int           `json:"listings"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// SearchResult aggregates one search across all sources. Partial
// failure is expected: a source failing entirely shows up in Sources,
// never as an error from the search itself.
type SearchResult struct {
	Query         string                        `json:"query"`
	Listings      []NormalizedListing           `json:"listings"`
	Sources       map[Marketplace]SourceOutcome `json:"sources"`
	TotalListings int                           `json:"total_listings"`
	Blocked       int                           `json:"blocked"`
	Invalid       int                           `json:"invalid"`
	Elapsed       time.Duration                 `json:"elapsed"`
	FromCache     bool                          `json:"from_cache"`
	// Error annotates a degraded result (e.g. zero operational
	// sources). The search call itself still returns nil.
	Error string `json:"error,omitempty"`
}

// RunStatus is the lifecycle state of a recorded collection run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// CollectionRun is the persisted record of one per-source collection.
type CollectionRun struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	Marketplace Marketplace `json:"marketplace"`
	Status      RunStatus   `json:"status"`
	ResultCount int         `json:"result_count"`
	DurationMs  int64       `json:"duration_ms"`
	CreatedAt   time.Time   `json:"created_at"`
}
