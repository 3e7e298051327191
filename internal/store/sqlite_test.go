package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testListing(id string, priceCents int64) model.NormalizedListing {
	return model.NormalizedListing{
		ExternalID:  id,
		Marketplace: model.MarketplaceEBay,
		Title:       "Incredible Hulk #181 CGC 6.5",
		PriceCents:  priceCents,
		SourceURL:   "https://www.ebay.com/itm/" + id,
		Confidence:  0.8,
	}
}

// --- Listings ---

func TestSQLite_UpsertListings_InsertAndUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertListings(ctx, []model.NormalizedListing{
		testListing("itm-1", 150000),
		testListing("itm-2", 90000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Same key again updates in place instead of duplicating.
	updated := testListing("itm-1", 175000)
	updated.Confidence = 0.9
	_, err = st.UpsertListings(ctx, []model.NormalizedListing{updated})
	require.NoError(t, err)

	listings, err := st.ListListings(ctx, ListingFilter{Marketplace: model.MarketplaceEBay})
	require.NoError(t, err)
	require.Len(t, listings, 2)

	byID := map[string]model.NormalizedListing{}
	for _, l := range listings {
		byID[l.ExternalID] = l
	}
	assert.Equal(t, int64(175000), byID["itm-1"].PriceCents)
	assert.Equal(t, 0.9, byID["itm-1"].Confidence)
}

func TestSQLite_UpsertListings_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.UpsertListings(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_ListListings_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	low := testListing("itm-low", 500)
	low.Confidence = 0.2
	other := testListing("itm-heritage", 250000)
	other.Marketplace = model.MarketplaceHeritage
	other.Title = "X-Men #1 1963 CGC 4.0"

	_, err := st.UpsertListings(ctx, []model.NormalizedListing{
		testListing("itm-1", 150000), low, other,
	})
	require.NoError(t, err)

	byMkt, err := st.ListListings(ctx, ListingFilter{Marketplace: model.MarketplaceHeritage})
	require.NoError(t, err)
	require.Len(t, byMkt, 1)
	assert.Equal(t, "itm-heritage", byMkt[0].ExternalID)

	byTitle, err := st.ListListings(ctx, ListingFilter{Query: "Hulk"})
	require.NoError(t, err)
	assert.Len(t, byTitle, 2)

	confident, err := st.ListListings(ctx, ListingFilter{MinConfidence: 0.5})
	require.NoError(t, err)
	assert.Len(t, confident, 2)
}

// --- Runs ---

func TestSQLite_Runs_RecordAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRun(ctx, model.CollectionRun{
		Query:       "hulk 181",
		Marketplace: model.MarketplaceEBay,
		Status:      model.RunStatusComplete,
		ResultCount: 12,
		DurationMs:  840,
	}))
	require.NoError(t, st.RecordRun(ctx, model.CollectionRun{
		Query:       "hulk 181",
		Marketplace: model.MarketplaceWhatnot,
		Status:      model.RunStatusFailed,
	}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.MarketplaceWhatnot, failed[0].Marketplace)
	assert.NotEmpty(t, failed[0].ID)

	recent, err := st.ListRuns(ctx, RunFilter{CreatedAfter: time.Now().UTC().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, recent)
}

// --- Search cache ---

func TestSQLite_SearchCache_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	result := &model.SearchResult{
		Query:         "hulk 181",
		TotalListings: 3,
		Sources: map[model.Marketplace]model.SourceOutcome{
			model.MarketplaceEBay: {Status: model.SourceSucceeded, Listings: 3},
		},
	}
	require.NoError(t, st.SetCachedSearch(ctx, "key-1", result, time.Hour))

	got, err := st.GetCachedSearch(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hulk 181", got.Query)
	assert.Equal(t, 3, got.TotalListings)
	assert.Equal(t, model.SourceSucceeded, got.Sources[model.MarketplaceEBay].Status)
}

func TestSQLite_SearchCache_MissAndExpiry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.GetCachedSearch(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, st.SetCachedSearch(ctx, "stale", &model.SearchResult{Query: "q"}, -time.Minute))
	got, err = st.GetCachedSearch(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err := st.DeleteExpiredSearches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

// --- Dead letter queue ---

func TestSQLite_DLQ_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := DLQEntry{
		Marketplace: model.MarketplaceAmazon,
		Query:       "spawn 1",
		Operation:   "search",
		Error:       "status 500",
		Category:    "server",
		Attempts:    5,
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := st.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "spawn 1", entries[0].Query)
	assert.Equal(t, "server", entries[0].Category)
	assert.NotEmpty(t, entries[0].ID)

	require.NoError(t, st.RemoveDLQ(ctx, entries[0].ID))
	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = st.RemoveDLQ(ctx, "nope")
	assert.Error(t, err)
}
