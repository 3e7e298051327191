package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
)

func TestHTTPSourceSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "hulk 181", r.URL.Query().Get("q"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"external_id":"itm-1","title":"Incredible Hulk #181","price":"$1,500.00","marketplace":"spoofed"},
			{"external_id":"itm-2","title":"Incredible Hulk #182","price":"$300.00"}
		]`))
	}))
	defer srv.Close()

	s := NewHTTPSource(model.MarketplaceEBay, HTTPOptions{BaseURL: srv.URL, APIKey: "sekret"})

	listings, err := s.Search(context.Background(), "hulk 181", model.SearchOptions{MaxResults: 25})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "itm-1", listings[0].ExternalID)
	assert.Equal(t, model.MarketplaceEBay, listings[0].Marketplace, "payload cannot spoof its origin")
	assert.Equal(t, model.MarketplaceEBay, listings[1].Marketplace)
}

func TestHTTPSourceSearch_ErrorStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantCategory resilience.Category
	}{
		{"rate limited", http.StatusTooManyRequests, resilience.CategoryRateLimit},
		{"auth", http.StatusUnauthorized, resilience.CategoryAuth},
		{"server", http.StatusInternalServerError, resilience.CategoryServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := NewHTTPSource(model.MarketplaceWhatnot, HTTPOptions{BaseURL: srv.URL})
			_, err := s.Search(context.Background(), "spawn 1", model.SearchOptions{})
			require.Error(t, err)

			var se *resilience.SourceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "whatnot", se.Source)
			assert.Equal(t, tt.wantCategory, resilience.Classify(err).Category)
		})
	}
}

func TestHTTPSourceSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	s := NewHTTPSource(model.MarketplaceAmazon, HTTPOptions{BaseURL: srv.URL})
	_, err := s.Search(context.Background(), "spawn 1", model.SearchOptions{})
	require.Error(t, err)
	assert.Equal(t, resilience.CategoryParsing, resilience.Classify(err).Category)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(model.MarketplaceEBay)
	assert.False(t, ok)

	r.Register(&Func{Marketplace: model.MarketplaceHeritage})
	r.Register(&Func{Marketplace: model.MarketplaceEBay})

	s, ok := r.Get(model.MarketplaceEBay)
	require.True(t, ok)
	assert.Equal(t, model.MarketplaceEBay, s.Name())

	all := r.All()
	require.Len(t, all, 2)
	// Stable marketplace order, not registration order.
	assert.Equal(t, model.MarketplaceEBay, all[0].Name())
	assert.Equal(t, model.MarketplaceHeritage, all[1].Name())
}
