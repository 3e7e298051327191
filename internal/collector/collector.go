// Package collector orchestrates fan-out searches across marketplace
// sources, with per-source rate limiting, retry scheduling, circuit
// breaking, validation, and storage.
package collector

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longbox-labs/pricefeed-cli/internal/config"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/monitoring"
	"github.com/longbox-labs/pricefeed-cli/internal/ratelimit"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
	"github.com/longbox-labs/pricefeed-cli/internal/source"
	"github.com/longbox-labs/pricefeed-cli/internal/store"
	"github.com/longbox-labs/pricefeed-cli/internal/validate"
)

const (
	minQueryLen = 2
	maxQueryLen = 200
)

// Deps bundles the subsystems an Orchestrator coordinates.
type Deps struct {
	Registry  *source.Registry
	Limiter   *ratelimit.Limiter
	Breakers  *resilience.SourceBreakers
	Scheduler *resilience.Scheduler
	Engine    *validate.Engine
	Store     store.Store
	Cache     store.SearchCache
	ErrorLog  *resilience.ErrorLog
	Metrics   *monitoring.Metrics
	// Events, when set, receives search and failure lifecycle events.
	Events monitoring.Sink
}

// Orchestrator runs searches across all operational sources and
// aggregates the validated results.
type Orchestrator struct {
	deps Deps
	cfg  config.CollectConfig

	marketplaces map[string]config.MarketplaceConfig
	cacheTTL     time.Duration

	nowFunc func() time.Time
}

// New creates an orchestrator. Marketplaces absent from the config map
// run with a 30s timeout and are considered enabled.
func New(deps Deps, cfg config.CollectConfig, marketplaces map[string]config.MarketplaceConfig, cacheTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		deps:         deps,
		cfg:          cfg,
		marketplaces: marketplaces,
		cacheTTL:     cacheTTL,
		nowFunc:      time.Now,
	}
}

// sourceResult carries one source's contribution back to the join.
type sourceResult struct {
	marketplace model.Marketplace
	outcome     model.SourceOutcome
	listings    []model.NormalizedListing
	blocked     int
	invalid     int
}

// Search fans the query out to every operational source and returns
// the aggregate. The only hard failure is a malformed query; per-source
// failures degrade the result instead of erroring it.
func (o *Orchestrator) Search(ctx context.Context, query string, opts model.SearchOptions) (*model.SearchResult, error) {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) < minQueryLen || len(query) > maxQueryLen {
		return nil, eris.Errorf("collector: query length must be between %d and %d characters", minQueryLen, maxQueryLen)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = o.cfg.MaxResults
	}

	key := store.SearchKey(query, opts)
	if o.deps.Cache != nil {
		cached, err := o.deps.Cache.Get(ctx, key)
		if err != nil {
			zap.L().Warn("collector: cache read failed", zap.Error(err))
		} else if cached != nil {
			cached.FromCache = true
			o.deps.Metrics.RecordSearch(true)
			o.emit(monitoring.Event{
				Type: monitoring.EventSearchComplete,
				Payload: map[string]any{
					"query":      query,
					"listings":   cached.TotalListings,
					"from_cache": true,
				},
			})
			return cached, nil
		}
	}

	overall := time.Duration(o.cfg.OverallTimeoutSecs) * time.Second
	if opts.Timeout > 0 {
		overall = opts.Timeout
	}
	if overall > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, overall)
		defer cancel()
	}

	start := o.nowFunc()
	result := &model.SearchResult{
		Query:   query,
		Sources: make(map[model.Marketplace]model.SourceOutcome),
	}

	sources := o.operationalSources(result)
	if len(sources) == 0 {
		result.Error = "no operational sources: all marketplaces disabled or circuit-open"
		result.Elapsed = o.nowFunc().Sub(start)
		o.deps.Metrics.RecordSearch(false)
		return result, nil
	}

	results := make([]sourceResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(sources))
	for i, src := range sources {
		g.Go(func() error {
			results[i] = o.collectSource(gctx, src, query, opts)
			// A source failing never aborts its siblings.
			return nil
		})
	}
	_ = g.Wait()

	var all []model.NormalizedListing
	for _, sr := range results {
		result.Sources[sr.marketplace] = sr.outcome
		result.Blocked += sr.blocked
		result.Invalid += sr.invalid
		all = append(all, sr.listings...)
		o.deps.Metrics.RecordRejected(string(sr.marketplace), sr.blocked, sr.invalid)
		o.recordRun(ctx, query, sr)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Confidence > all[j].Confidence
	})
	result.Listings = all
	result.TotalListings = len(all)
	result.Elapsed = o.nowFunc().Sub(start)

	if len(all) > 0 {
		if _, err := o.deps.Store.UpsertListings(ctx, all); err != nil {
			zap.L().Error("collector: upsert listings failed",
				zap.String("query", query),
				zap.Error(err))
		}
	}

	if o.deps.Cache != nil {
		if err := o.deps.Cache.Set(ctx, key, result, o.cacheTTL); err != nil {
			zap.L().Warn("collector: cache write failed", zap.Error(err))
		}
	}

	o.deps.Metrics.RecordSearch(false)
	o.emit(monitoring.Event{
		Type: monitoring.EventSearchComplete,
		Payload: map[string]any{
			"query":      query,
			"listings":   result.TotalListings,
			"blocked":    result.Blocked,
			"invalid":    result.Invalid,
			"from_cache": false,
			"elapsed_ms": result.Elapsed.Milliseconds(),
		},
	})
	return result, nil
}

// emit forwards an event when a sink is configured.
func (o *Orchestrator) emit(ev monitoring.Event) {
	if o.deps.Events != nil {
		o.deps.Events.Emit(ev)
	}
}

// operationalSources filters the registry down to enabled sources with
// admitting circuit breakers. Skipped sources are recorded on the
// result up front.
func (o *Orchestrator) operationalSources(result *model.SearchResult) []source.Source {
	var out []source.Source
	for _, src := range o.deps.Registry.All() {
		name := string(src.Name())
		if mc, ok := o.marketplaces[name]; ok && !mc.Enabled {
			continue
		}
		if o.deps.Breakers.Get(name).IsOpen() {
			result.Sources[src.Name()] = model.SourceOutcome{Status: model.SourceSkippedOpen}
			zap.L().Info("collector: skipping circuit-open source",
				zap.String("source", name))
			continue
		}
		out = append(out, src)
	}
	return out
}

// collectSource runs the rate-limit / search / classify / retry loop
// for one source until success or a terminal failure.
func (o *Orchestrator) collectSource(ctx context.Context, src source.Source, query string, opts model.SearchOptions) sourceResult {
	name := string(src.Name())
	breaker := o.deps.Breakers.Get(name)
	begin := o.nowFunc()

	sr := sourceResult{marketplace: src.Name()}

	attempt := 1
	var lastErr error
	for {
		sr.outcome.Attempts = attempt

		if err := o.deps.Limiter.Acquire(ctx, name); err != nil {
			sr.outcome.Status = model.SourceFailed
			sr.outcome.Error = err.Error()
			sr.outcome.Elapsed = o.nowFunc().Sub(begin)
			return sr
		}

		srcCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout(name))
		reqStart := o.nowFunc()
		listings, err := src.Search(srcCtx, query, opts)
		cancel()
		o.deps.Metrics.RecordAttempt(name, o.nowFunc().Sub(reqStart))

		if err == nil {
			breaker.RecordSuccess()
			o.validateBatch(ctx, &sr, listings)
			sr.outcome.Status = model.SourceSucceeded
			sr.outcome.Listings = len(sr.listings)
			sr.outcome.Elapsed = o.nowFunc().Sub(begin)
			o.deps.Metrics.RecordSuccess(name, len(sr.listings))
			return sr
		}

		lastErr = err
		rec := o.deps.ErrorLog.Record(name, "search", err)
		cls := resilience.Classification{
			Category:  rec.Category,
			Severity:  rec.Severity,
			Retryable: rec.Retryable,
		}
		breaker.RecordFailure(cls)
		zap.L().Warn("collector: source attempt failed",
			zap.String("source", name),
			zap.Int("attempt", attempt),
			zap.String("category", string(cls.Category)),
			zap.Error(err))

		item, terminalErr := o.deps.Scheduler.Schedule(name, "search", attempt, err)
		if terminalErr != nil {
			sr.outcome.Status = model.SourceFailed
			sr.outcome.Error = lastErr.Error()
			sr.outcome.Elapsed = o.nowFunc().Sub(begin)
			o.deps.Metrics.RecordFailure(name)
			o.emit(monitoring.Event{
				Type:   monitoring.EventSourceFailure,
				Source: name,
				Payload: map[string]any{
					"category": string(cls.Category),
					"attempts": attempt,
					"error":    lastErr.Error(),
				},
			})
			if !eris.Is(terminalErr, resilience.ErrBreakerOpen) {
				o.deadLetter(ctx, name, query, cls, lastErr, attempt)
			}
			return sr
		}

		select {
		case <-item.Ready:
		case <-ctx.Done():
			sr.outcome.Status = model.SourceFailed
			sr.outcome.Error = ctx.Err().Error()
			sr.outcome.Elapsed = o.nowFunc().Sub(begin)
			o.deps.Metrics.RecordFailure(name)
			o.emit(monitoring.Event{
				Type:   monitoring.EventSourceFailure,
				Source: name,
				Payload: map[string]any{
					"category": string(cls.Category),
					"attempts": attempt,
					"error":    ctx.Err().Error(),
				},
			})
			return sr
		}
		attempt++
	}
}

// validateBatch runs the raw listings through the validation engine and
// splits the rejects into blocked and invalid.
func (o *Orchestrator) validateBatch(ctx context.Context, sr *sourceResult, raw []model.RawListing) {
	if len(raw) == 0 {
		return
	}
	batchSize := o.cfg.ValidateBatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	for _, res := range o.deps.Engine.BatchValidate(ctx, raw, sr.marketplace, batchSize) {
		if res.Valid {
			sr.listings = append(sr.listings, *res.Normalized)
			continue
		}
		if isBlocked(res.Errors) {
			sr.blocked++
		} else {
			sr.invalid++
		}
	}
}

// isBlocked reports whether a rejection came from the suspicious
// content blocklists rather than structural validation.
func isBlocked(errs []string) bool {
	for _, e := range errs {
		if strings.Contains(strings.ToLower(e), "suspicious") {
			return true
		}
	}
	return false
}

func (o *Orchestrator) sourceTimeout(name string) time.Duration {
	if mc, ok := o.marketplaces[name]; ok && mc.TimeoutSecs > 0 {
		return time.Duration(mc.TimeoutSecs) * time.Second
	}
	return 30 * time.Second
}

// recordRun persists a per-source run row; failures only log.
func (o *Orchestrator) recordRun(ctx context.Context, query string, sr sourceResult) {
	status := model.RunStatusComplete
	switch sr.outcome.Status {
	case model.SourceFailed:
		status = model.RunStatusFailed
	case model.SourceSkippedOpen:
		return
	}
	if sr.invalid > 0 || sr.blocked > 0 {
		if status == model.RunStatusComplete && len(sr.listings) > 0 {
			status = model.RunStatusPartial
		}
	}

	run := model.CollectionRun{
		Query:       query,
		Marketplace: sr.marketplace,
		Status:      status,
		ResultCount: len(sr.listings),
		DurationMs:  sr.outcome.Elapsed.Milliseconds(),
	}
	if err := o.deps.Store.RecordRun(ctx, run); err != nil {
		zap.L().Warn("collector: record run failed",
			zap.String("marketplace", string(sr.marketplace)),
			zap.Error(err))
	}
}

// deadLetter parks a terminally failed collection for inspection.
func (o *Orchestrator) deadLetter(ctx context.Context, name, query string, cls resilience.Classification, cause error, attempts int) {
	entry := store.DLQEntry{
		Marketplace: model.Marketplace(name),
		Query:       query,
		Operation:   "search",
		Error:       cause.Error(),
		Category:    string(cls.Category),
		Attempts:    attempts,
	}
	if err := o.deps.Store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Warn("collector: dlq enqueue failed",
			zap.String("marketplace", name),
			zap.Error(err))
	}
}
