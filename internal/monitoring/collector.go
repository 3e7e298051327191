// Package monitoring gathers pipeline health snapshots and delivers
// webhook alerts when collection quality degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
	"github.com/longbox-labs/pricefeed-cli/internal/store"
)

// Snapshot holds a point-in-time view of collection health.
type Snapshot struct {
	// Collection runs within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsPartial  int     `json:"runs_partial"`
	RunsFailed   int     `json:"runs_failed"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Circuit breakers currently not closed.
	OpenCircuits []string `json:"open_circuits,omitempty"`

	// Recent error mix from the in-process error log.
	ErrorsByCategory map[resilience.Category]int `json:"errors_by_category,omitempty"`
	ErrorsBySource   map[string]int              `json:"errors_by_source,omitempty"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health snapshots from the store, the circuit
// breaker registry, and the error log.
type Collector struct {
	store    store.Store
	breakers *resilience.SourceBreakers
	errlog   *resilience.ErrorLog
}

// NewCollector creates a metrics collector. breakers and errlog may be
// nil when only store-backed metrics are wanted.
func NewCollector(st store.Store, breakers *resilience.SourceBreakers, errlog *resilience.ErrorLog) *Collector {
	return &Collector{store: st, breakers: breakers, errlog: errlog}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
	}
	if snap.RunsTotal > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}

	if c.breakers != nil {
		for source, state := range c.breakers.States() {
			if state != resilience.CircuitClosed {
				snap.OpenCircuits = append(snap.OpenCircuits, source)
			}
		}
	}

	if c.errlog != nil {
		snap.ErrorsByCategory, snap.ErrorsBySource = c.errlog.Counts()
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
