package monitoring

import (
	"sync"
	"time"
)

// SourceStats holds live counters for one marketplace.
type SourceStats struct {
	Attempts     int64         `json:"attempts"`
	Successes    int64         `json:"successes"`
	Failures     int64         `json:"failures"`
	Listings     int64         `json:"listings"`
	Blocked      int64         `json:"blocked"`
	Invalid      int64         `json:"invalid"`
	TotalLatency time.Duration `json:"total_latency"`
}

// AvgLatency returns the mean request latency for the source.
func (s SourceStats) AvgLatency() time.Duration {
	if s.Attempts == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Attempts)
}

// Metrics accumulates in-process collection counters. All methods are
// safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	perSource map[string]*SourceStats
	searches  int64
	cacheHits int64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{perSource: make(map[string]*SourceStats)}
}

func (m *Metrics) get(source string) *SourceStats {
	s, ok := m.perSource[source]
	if !ok {
		s = &SourceStats{}
		m.perSource[source] = s
	}
	return s
}

// RecordAttempt counts one request to a source.
func (m *Metrics) RecordAttempt(source string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(source)
	s.Attempts++
	s.TotalLatency += latency
}

// RecordSuccess counts a completed source collection.
func (m *Metrics) RecordSuccess(source string, listings int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(source)
	s.Successes++
	s.Listings += int64(listings)
}

// RecordFailure counts a terminally failed source collection.
func (m *Metrics) RecordFailure(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(source).Failures++
}

// RecordRejected counts listings dropped by validation, split into
// blocked (suspicious content) and otherwise invalid.
func (m *Metrics) RecordRejected(source string, blocked, invalid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(source)
	s.Blocked += int64(blocked)
	s.Invalid += int64(invalid)
}

// RecordSearch counts one orchestrated search.
func (m *Metrics) RecordSearch(fromCache bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	if fromCache {
		m.cacheHits++
	}
}

// Totals returns search and cache-hit counts.
func (m *Metrics) Totals() (searches, cacheHits int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searches, m.cacheHits
}

// Sources returns a copy of the per-source counters.
func (m *Metrics) Sources() map[string]SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]SourceStats, len(m.perSource))
	for name, s := range m.perSource {
		out[name] = *s
	}
	return out
}
