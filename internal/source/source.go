// Package source defines the marketplace search interface and the
// registry the orchestrator fans out over.
package source

import (
	"context"
	"sync"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// Source searches one marketplace for raw listings. Implementations
// surface transport failures as *resilience.SourceError so the error
// classifier can read status codes.
type Source interface {
	Name() model.Marketplace
	Search(ctx context.Context, query string, opts model.SearchOptions) ([]model.RawListing, error)
}

// Registry holds the active sources keyed by marketplace.
type Registry struct {
	mu      sync.RWMutex
	sources map[model.Marketplace]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[model.Marketplace]Source)}
}

// Register adds or replaces the source for its marketplace.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns the source for a marketplace, if registered.
func (r *Registry) Get(mkt model.Marketplace) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[mkt]
	return s, ok
}

// All returns the registered sources in stable marketplace order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.sources))
	for _, mkt := range model.AllMarketplaces() {
		if s, ok := r.sources[mkt]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Func adapts a plain function to the Source interface. Mostly useful
// in tests and embedding scenarios.
type Func struct {
	Marketplace model.Marketplace
	SearchFunc  func(ctx context.Context, query string, opts model.SearchOptions) ([]model.RawListing, error)
}

func (f *Func) Name() model.Marketplace {
	return f.Marketplace
}

func (f *Func) Search(ctx context.Context, query string, opts model.SearchOptions) ([]model.RawListing, error) {
	return f.SearchFunc(ctx, query, opts)
}
