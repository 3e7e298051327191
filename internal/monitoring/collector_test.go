package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/resilience"
	"github.com/longbox-labs/pricefeed-cli/internal/store"
)

// fakeStore satisfies store.Store with canned data for the methods the
// collector touches.
type fakeStore struct {
	store.Store
	runs     []model.CollectionRun
	dlqCount int
	listErr  error
}

func (f *fakeStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.CollectionRun, error) {
	return f.runs, f.listErr
}

func (f *fakeStore) CountDLQ(_ context.Context) (int, error) {
	return f.dlqCount, nil
}

func TestCollectorCollect(t *testing.T) {
	st := &fakeStore{
		runs: []model.CollectionRun{
			{Status: model.RunStatusComplete},
			{Status: model.RunStatusComplete},
			{Status: model.RunStatusPartial},
			{Status: model.RunStatusFailed},
		},
		dlqCount: 7,
	}

	breakers := resilience.NewSourceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	cls := resilience.Classify(resilience.NewSourceError("whatnot", "search", 500, errors.New("boom")))
	breakers.Get("whatnot").RecordFailure(cls)
	breakers.Get("ebay").RecordSuccess()

	errlog := resilience.NewErrorLog(10)
	errlog.Record("whatnot", "search", resilience.NewSourceError("whatnot", "search", 500, errors.New("boom")))

	c := NewCollector(st, breakers, errlog)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsPartial)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.InDelta(t, 0.25, snap.RunFailRate, 0.001)
	assert.Equal(t, []string{"whatnot"}, snap.OpenCircuits)
	assert.Equal(t, 7, snap.DLQDepth)
	assert.Equal(t, 1, snap.ErrorsBySource["whatnot"])
	assert.Equal(t, 24, snap.LookbackHours)
	assert.WithinDuration(t, time.Now().UTC(), snap.CollectedAt, 5*time.Second)
}

func TestCollectorCollect_StoreError(t *testing.T) {
	c := NewCollector(&fakeStore{listErr: errors.New("db down")}, nil, nil)
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordAttempt("ebay", 100*time.Millisecond)
	m.RecordAttempt("ebay", 300*time.Millisecond)
	m.RecordSuccess("ebay", 12)
	m.RecordFailure("whatnot")
	m.RecordRejected("ebay", 1, 2)
	m.RecordSearch(false)
	m.RecordSearch(true)

	sources := m.Sources()
	ebay := sources["ebay"]
	assert.Equal(t, int64(2), ebay.Attempts)
	assert.Equal(t, int64(1), ebay.Successes)
	assert.Equal(t, int64(12), ebay.Listings)
	assert.Equal(t, int64(1), ebay.Blocked)
	assert.Equal(t, int64(2), ebay.Invalid)
	assert.Equal(t, 200*time.Millisecond, ebay.AvgLatency())
	assert.Equal(t, int64(1), sources["whatnot"].Failures)

	searches, hits := m.Totals()
	assert.Equal(t, int64(2), searches)
	assert.Equal(t, int64(1), hits)
}
