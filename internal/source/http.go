package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
)

// HTTPOptions configures an HTTP-backed marketplace source.
type HTTPOptions struct {
	// BaseURL of the marketplace scraper endpoint. Search requests go
	// to BaseURL/search.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	APIKey    string
}

// HTTPSource queries a marketplace scraper endpoint that speaks the
// raw-listing JSON shape. Retry and backoff are owned by the
// orchestrator, so a failed request surfaces immediately as a
// *resilience.SourceError.
type HTTPSource struct {
	marketplace model.Marketplace
	opts        HTTPOptions
	client      *http.Client
}

// NewHTTPSource creates an HTTP source for one marketplace.
func NewHTTPSource(mkt model.Marketplace, opts HTTPOptions) *HTTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pricefeed-cli/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPSource{
		marketplace: mkt,
		opts:        opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}
}

func (s *HTTPSource) Name() model.Marketplace {
	return s.marketplace
}

func (s *HTTPSource) Search(ctx context.Context, query string, opts model.SearchOptions) ([]model.RawListing, error) {
	endpoint, err := url.Parse(s.opts.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: parse base url", s.marketplace)
	}
	endpoint = endpoint.JoinPath("search")

	params := url.Values{}
	params.Set("q", query)
	if opts.MaxResults > 0 {
		params.Set("limit", strconv.Itoa(opts.MaxResults))
	}
	if opts.IncludeSoldListings {
		params.Set("include_sold", "true")
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: create request", s.marketplace)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.NewSourceError(string(s.marketplace), "search", 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resilience.NewSourceError(string(s.marketplace), "search", resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}

	listings, err := decodeListings(ctx, resp.Body)
	if err != nil {
		return nil, resilience.NewSourceError(string(s.marketplace), "search", 0,
			eris.Wrap(err, "malformed response"))
	}

	// Stamp the marketplace so downstream never trusts the payload's
	// self-reported origin.
	for i := range listings {
		listings[i].Marketplace = s.marketplace
	}
	return listings, nil
}
