package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/longbox-labs/pricefeed-cli/internal/collector"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/monitoring"
	"github.com/longbox-labs/pricefeed-cli/internal/ratelimit"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
	"github.com/longbox-labs/pricefeed-cli/internal/source"
	"github.com/longbox-labs/pricefeed-cli/internal/store"
	"github.com/longbox-labs/pricefeed-cli/internal/validate"
)

// env bundles the wired collection pipeline for commands.
type env struct {
	Store        store.Store
	Cache        store.SearchCache
	Registry     *source.Registry
	Breakers     *resilience.SourceBreakers
	Scheduler    *resilience.Scheduler
	ErrorLog     *resilience.ErrorLog
	Metrics      *monitoring.Metrics
	Events       *monitoring.Emitter
	Engine       *validate.Engine
	Orchestrator *collector.Orchestrator
}

func (e *env) Close() {
	e.Scheduler.Stop()
	if e.Events != nil {
		e.Events.Close()
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

// circuitEvents adapts breaker transitions into pipeline events.
func circuitEvents(events *monitoring.Emitter) func(src string, from, to resilience.CircuitState) {
	return func(src string, from, to resilience.CircuitState) {
		events.Emit(monitoring.Event{
			Type:   monitoring.EventCircuitStateChange,
			Source: src,
			Payload: map[string]any{
				"from": from.String(),
				"to":   to.String(),
			},
		})
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return st, nil
	case "sqlite", "":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv wires sources, resilience, validation, and storage into a
// ready Orchestrator.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	var cache store.SearchCache
	if cfg.Cache.Driver == "memory" {
		cache = store.NewMemoryCache()
	} else {
		cache = store.NewStoreCache(st)
	}

	registry := source.NewRegistry()
	limits := make(map[string]ratelimit.Config, len(cfg.Marketplaces))
	reliability := make(map[string]float64, len(cfg.Marketplaces))
	for _, mkt := range model.AllMarketplaces() {
		mc, ok := cfg.Marketplaces[string(mkt)]
		if !ok {
			continue
		}
		limits[string(mkt)] = ratelimit.Config{
			RequestsPerSecond: mc.RequestsPerSecond,
			RequestsPerMinute: mc.RequestsPerMinute,
			Burst:             mc.Burst,
		}
		reliability[string(mkt)] = mc.Reliability
		if mc.BaseURL == "" {
			zap.L().Debug("marketplace has no base URL, not registering", zap.String("marketplace", string(mkt)))
			continue
		}
		registry.Register(source.NewHTTPSource(mkt, source.HTTPOptions{
			BaseURL: mc.BaseURL,
			APIKey:  mc.APIKey,
			Timeout: time.Duration(mc.TimeoutSecs) * time.Second,
		}))
	}

	breakers := resilience.NewSourceBreakers(resilience.FromBreakerConfig(
		cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeoutSecs, cfg.Breaker.HalfOpenMaxProbes))
	events := monitoring.NewEmitter(monitoring.ZapSink{}, 128)
	breakers.OnStateChange(circuitEvents(events))

	scheduler := resilience.NewScheduler(resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts, cfg.Retry.BaseDelayMs, cfg.Retry.MaxDelayMs, cfg.Retry.JitterFraction,
	), breakers)

	rules := validate.DefaultRules()
	if cfg.Validation.RulesFile != "" {
		rules, err = validate.LoadRules(cfg.Validation.RulesFile)
		if err != nil {
			scheduler.Stop()
			events.Close()
			st.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "load validation rules")
		}
	}

	engine := validate.NewEngine(validate.Options{
		Rules:       rules,
		Anomaly:     cfg.Anomaly,
		Confidence:  cfg.Confidence,
		Reliability: reliability,
	})

	errlog := resilience.NewErrorLog(256)
	metrics := monitoring.NewMetrics()

	orch := collector.New(collector.Deps{
		Registry:  registry,
		Limiter:   ratelimit.New(limits),
		Breakers:  breakers,
		Scheduler: scheduler,
		Engine:    engine,
		Store:     st,
		Cache:     cache,
		ErrorLog:  errlog,
		Metrics:   metrics,
		Events:    events,
	}, cfg.Collect, cfg.Marketplaces, time.Duration(cfg.Cache.TTLSeconds)*time.Second)

	return &env{
		Store:        st,
		Cache:        cache,
		Registry:     registry,
		Breakers:     breakers,
		Scheduler:    scheduler,
		ErrorLog:     errlog,
		Metrics:      metrics,
		Events:       events,
		Engine:       engine,
		Orchestrator: orch,
	}, nil
}
