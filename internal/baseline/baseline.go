// Package baseline maintains rolling per-(marketplace, metric) sample
// windows used as the empirical distribution for anomaly z-scores.
package baseline

import (
	"math"
	"sort"
	"sync"
)

// Metric names the numeric listing fields tracked per marketplace.
type Metric string

const (
	MetricPrice         Metric = "price"
	MetricViews         Metric = "views"
	MetricWatchers      Metric = "watchers"
	MetricBids          Metric = "bids"
	MetricSellerScore   Metric = "seller_score"
)

// Stats is a snapshot of one window's distribution.
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Q1     float64
	Q3     float64
}

// window holds one key's samples with its own lock so unrelated
// (marketplace, metric) pairs never contend.
type window struct {
	mu      sync.Mutex
	samples []float64
	head    int
	full    bool
}

// Tracker owns all rolling windows. Samples past the cap evict
// oldest-first. State is in-memory only; it is rebuilt from scratch on
// process restart.
type Tracker struct {
	mu      sync.RWMutex
	windows map[string]*window
	cap     int
	minN    int
}

// New creates a tracker with the given window capacity and the minimum
// sample count below which z-scores are considered meaningless.
func New(capacity, minSamples int) *Tracker {
	if capacity <= 0 {
		capacity = 1000
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	return &Tracker{
		windows: make(map[string]*window),
		cap:     capacity,
		minN:    minSamples,
	}
}

// Observe appends one sample to the (marketplace, metric) window.
func (t *Tracker) Observe(marketplace string, metric Metric, value float64) {
	w := t.get(marketplace, metric)
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) < t.cap && !w.full {
		w.samples = append(w.samples, value)
		if len(w.samples) == t.cap {
			w.full = true
		}
		return
	}
	w.samples[w.head] = value
	w.head = (w.head + 1) % t.cap
}

// ZScore returns the z-score of value against the window, and whether
// the window has enough samples to make it meaningful. A zero-stddev
// window reports a z of 0 for in-distribution values and +Inf guarded
// to a large finite z otherwise.
func (t *Tracker) ZScore(marketplace string, metric Metric, value float64) (float64, bool) {
	w := t.get(marketplace, metric)
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.samples)
	if n < t.minN {
		return 0, false
	}

	mean, sd := meanStdDev(w.samples)
	if sd == 0 {
		if value == mean {
			return 0, true
		}
		return 1000, true
	}
	return (value - mean) / sd, true
}

// Snapshot returns distribution stats for one window.
func (t *Tracker) Snapshot(marketplace string, metric Metric) Stats {
	w := t.get(marketplace, metric)
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.samples)
	if n == 0 {
		return Stats{}
	}
	mean, sd := meanStdDev(w.samples)
	q1, q3 := quartiles(w.samples)
	return Stats{Count: n, Mean: mean, StdDev: sd, Q1: q1, Q3: q3}
}

// Ready reports whether the window has reached the minimum sample count.
func (t *Tracker) Ready(marketplace string, metric Metric) bool {
	w := t.get(marketplace, metric)
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples) >= t.minN
}

func (t *Tracker) get(marketplace string, metric Metric) *window {
	key := marketplace + "/" + string(metric)

	t.mu.RLock()
	w, ok := t.windows[key]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.windows[key]; ok {
		return w
	}
	w = &window{}
	t.windows[key] = w
	return w
}

func meanStdDev(samples []float64) (mean, sd float64) {
	n := float64(len(samples))
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean = sum / n

	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	sd = math.Sqrt(sq / n)
	return mean, sd
}

// quartiles returns the 25th and 75th percentiles (nearest-rank).
func quartiles(samples []float64) (q1, q3 float64) {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	n := len(sorted)
	q1 = sorted[n/4]
	q3 = sorted[(3*n)/4]
	if (3*n)/4 >= n {
		q3 = sorted[n-1]
	}
	return q1, q3
}
