package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/pricefeed-cli/internal/collector"
	"github.com/longbox-labs/pricefeed-cli/internal/config"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/monitoring"
	"github.com/longbox-labs/pricefeed-cli/internal/ratelimit"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
	"github.com/longbox-labs/pricefeed-cli/internal/source"
	"github.com/longbox-labs/pricefeed-cli/internal/store"
	"github.com/longbox-labs/pricefeed-cli/internal/validate"
)

func newTestEnv(t *testing.T) *env {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	registry := source.NewRegistry()
	registry.Register(&source.Func{
		Marketplace: model.MarketplaceEBay,
		SearchFunc: func(_ context.Context, _ string, _ model.SearchOptions) ([]model.RawListing, error) {
			return []model.RawListing{{
				ExternalID: "eb-1",
				Title:      "Incredible Hulk #181 VG 4.0",
				Price:      "$900.00",
				SourceURL:  "https://example.com/itm/eb-1",
				Condition:  "vg",
				Seller:     &model.RawSeller{Name: "dealer", FeedbackScore: "1200"},
			}}, nil
		},
	})

	breakers := resilience.NewSourceBreakers(resilience.DefaultCircuitBreakerConfig())
	scheduler := resilience.NewScheduler(resilience.RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	}, breakers)
	t.Cleanup(scheduler.Stop)

	errlog := resilience.NewErrorLog(50)
	metrics := monitoring.NewMetrics()
	engine := validate.NewEngine(validate.Options{})
	cache := store.NewMemoryCache()

	marketplaces := map[string]config.MarketplaceConfig{
		"ebay": {Enabled: true, TimeoutSecs: 5},
	}

	orch := collector.New(collector.Deps{
		Registry:  registry,
		Limiter:   ratelimit.New(nil),
		Breakers:  breakers,
		Scheduler: scheduler,
		Engine:    engine,
		Store:     st,
		Cache:     cache,
		ErrorLog:  errlog,
		Metrics:   metrics,
	}, config.CollectConfig{MaxResults: 25}, marketplaces, time.Minute)

	return &env{
		Store:        st,
		Cache:        cache,
		Registry:     registry,
		Breakers:     breakers,
		Scheduler:    scheduler,
		ErrorLog:     errlog,
		Metrics:      metrics,
		Engine:       engine,
		Orchestrator: orch,
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSearchEndpoint(t *testing.T) {
	router := newRouter(newTestEnv(t))

	body, _ := json.Marshal(map[string]any{"query": "hulk 181"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "hulk 181", result.Query)
	assert.Equal(t, 1, result.TotalListings)
	assert.Equal(t, model.SourceSucceeded, result.Sources[model.MarketplaceEBay].Status)
}

func TestSearchEndpointBadRequests(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader([]byte("not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(map[string]any{"query": "x"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "query below minimum length")
}

func TestListingsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	router := newRouter(e)

	now := time.Now().UTC()
	_, err := e.Store.UpsertListings(context.Background(), []model.NormalizedListing{{
		ExternalID:  "eb-7",
		Marketplace: model.MarketplaceEBay,
		Title:       "Amazing Spider-Man #300",
		PriceCents:  85000,
		SourceURL:   "https://example.com/itm/eb-7",
		Confidence:  0.8,
		Validation:  model.ValidationMeta{Marketplace: model.MarketplaceEBay, CheckedAt: now},
	}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings?marketplace=ebay", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count    int                       `json:"count"`
		Listings []model.NormalizedListing `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "eb-7", resp.Listings[0].ExternalID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings?min_confidence=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?hours=6", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 6, snap.LookbackHours)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.Metrics.RecordSearch(false)
	e.Metrics.RecordSearch(true)
	router := newRouter(e)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Searches  int64 `json:"searches"`
		CacheHits int64 `json:"cache_hits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Searches)
	assert.Equal(t, int64(1), resp.CacheHits)
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, 50, intParam("", 50))
	assert.Equal(t, 10, intParam("10", 50))
	assert.Equal(t, 50, intParam("-3", 50))
	assert.Equal(t, 50, intParam("abc", 50))
}
