package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// SearchCache is the read-through cache consulted before fanning a
// search out to the marketplaces.
type SearchCache interface {
	Get(ctx context.Context, key string) (*model.SearchResult, error)
	Set(ctx context.Context, key string, result *model.SearchResult, ttl time.Duration) error
}

// SearchKey derives the cache key for a query and its options. The
// query is case-folded so "Hulk 181" and "hulk 181" share an entry.
func SearchKey(query string, opts model.SearchOptions) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	raw := fmt.Sprintf("%s|%d|%t", normalized, opts.MaxResults, opts.IncludeSoldListings)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// StoreCache adapts a Store's search_cache table to the SearchCache
// interface.
type StoreCache struct {
	store Store
}

// NewStoreCache wraps a store as a search cache.
func NewStoreCache(s Store) *StoreCache {
	return &StoreCache{store: s}
}

func (c *StoreCache) Get(ctx context.Context, key string) (*model.SearchResult, error) {
	return c.store.GetCachedSearch(ctx, key)
}

func (c *StoreCache) Set(ctx context.Context, key string, result *model.SearchResult, ttl time.Duration) error {
	return c.store.SetCachedSearch(ctx, key, result, ttl)
}

type memoryEntry struct {
	result    *model.SearchResult
	expiresAt time.Time
}

// MemoryCache is a process-local SearchCache for deployments without a
// shared database, and for tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	nowFunc func() time.Time
}

// NewMemoryCache creates an empty in-memory search cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*model.SearchResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.nowFunc().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.result, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, result *model.SearchResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: result, expiresAt: c.nowFunc().Add(ttl)}

	// Opportunistic sweep so abandoned keys do not pile up.
	if len(c.entries) > 1024 {
		now := c.nowFunc()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	return nil
}
