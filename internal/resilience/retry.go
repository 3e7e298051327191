package resilience

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryConfig controls backoff behavior for failed source operations.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first
	// try). Default: 5.
	MaxAttempts int

	// BaseDelay is the backoff before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff. Default: 30s.
	MaxDelay time.Duration

	// JitterFraction adds random positive jitter as a fraction of the
	// computed delay. Default: 0.25.
	JitterFraction float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.25,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// categoryMultiplier stretches backoff for categories where hammering
// the source makes things worse.
func categoryMultiplier(cat Category) float64 {
	switch cat {
	case CategoryRateLimit:
		return 2.0
	case CategoryNetwork:
		return 1.5
	case CategoryServer:
		return 1.2
	default:
		return 1.0
	}
}

// BaseBackoff returns the deterministic (non-jittered) backoff for the
// given attempt (1-based) and category, capped at MaxDelay.
func BaseBackoff(cfg RetryConfig, attempt int, cat Category) time.Duration {
	cfg = cfg.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)) * categoryMultiplier(cat)
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Backoff returns BaseBackoff with jitter applied, still capped.
func Backoff(cfg RetryConfig, attempt int, cat Category) time.Duration {
	cfg = cfg.withDefaults()
	delay := float64(BaseBackoff(cfg, attempt, cat))
	if cfg.JitterFraction > 0 {
		delay *= 1 + cfg.JitterFraction*rand.Float64()
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Terminal scheduling errors.
var (
	// ErrAttemptsExhausted means the operation has used all attempts.
	ErrAttemptsExhausted = eris.New("retry: attempts exhausted")
	// ErrBreakerOpen means no retry was queued because the source's
	// circuit is open — failing fast beats queueing behind it.
	ErrBreakerOpen = eris.New("retry: circuit open for source")
)

// RetryItem is one scheduled retry. Ready is closed when the wake time
// elapses; the goroutine owning the source's retry loop waits on it,
// which keeps attempts for one source strictly ordered.
type RetryItem struct {
	Source  string
	Op      string
	Attempt int
	Cause   error
	WakeAt  time.Time

	Ready <-chan struct{}
	ready chan struct{}

	index int // heap bookkeeping
}

// retryHeap is a min-heap of pending items keyed by wake time.
type retryHeap []*RetryItem

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].WakeAt.Before(h[j].WakeAt) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *retryHeap) Push(x any)         { it := x.(*RetryItem); it.index = len(*h); *h = append(*h, it) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Scheduler queues retries of failed per-source operations. All
// pending items share one heap and one timer; the timer is re-armed
// for the earliest wake time, and every elapsed item is released when
// it fires.
type Scheduler struct {
	cfg      RetryConfig
	breakers *SourceBreakers

	mu      sync.Mutex
	pending retryHeap
	timer   *time.Timer
	closed  bool

	nowFunc func() time.Time
}

// NewScheduler creates a retry scheduler consulting the given breaker
// registry before queueing.
func NewScheduler(cfg RetryConfig, breakers *SourceBreakers) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		breakers: breakers,
		nowFunc:  time.Now,
	}
}

// MaxAttempts exposes the attempt budget for callers tracking it.
func (s *Scheduler) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

// Schedule queues a retry for the given source operation. attempt is
// the attempt that just failed (1-based). Returns a terminal error
// without queueing when the attempt budget is spent, the failure is
// not retryable, or the source's circuit is open.
func (s *Scheduler) Schedule(source, op string, attempt int, cause error) (*RetryItem, error) {
	cls := Classify(cause)
	if !cls.Retryable {
		return nil, eris.Wrapf(cause, "retry: %s category is not retryable", cls.Category)
	}
	if attempt >= s.cfg.MaxAttempts {
		return nil, ErrAttemptsExhausted
	}
	if s.breakers != nil && s.breakers.Get(source).State() == CircuitOpen {
		return nil, ErrBreakerOpen
	}

	delay := Backoff(s.cfg, attempt, cls.Category)
	readyCh := make(chan struct{})
	item := &RetryItem{
		Source:  source,
		Op:      op,
		Attempt: attempt + 1,
		Cause:   cause,
		WakeAt:  s.nowFunc().Add(delay),
		Ready:   readyCh,
		ready:   readyCh,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, eris.New("retry: scheduler stopped")
	}
	heap.Push(&s.pending, item)
	s.armTimerLocked()

	zap.L().Debug("retry scheduled",
		zap.String("source", source),
		zap.String("operation", op),
		zap.Int("next_attempt", item.Attempt),
		zap.Duration("delay", delay),
	)
	return item, nil
}

// Pending returns the number of queued retries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Stop releases all pending items immediately and stops the timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for s.pending.Len() > 0 {
		it := heap.Pop(&s.pending).(*RetryItem)
		close(it.ready)
	}
}

// armTimerLocked (re)arms the single timer for the earliest wake time.
func (s *Scheduler) armTimerLocked() {
	if s.pending.Len() == 0 {
		return
	}
	next := s.pending[0].WakeAt
	d := next.Sub(s.nowFunc())
	if d < 0 {
		d = 0
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(d, s.fire)
		return
	}
	s.timer.Stop()
	s.timer.Reset(d)
}

// fire releases every item whose wake time has elapsed.
func (s *Scheduler) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.nowFunc()
	for s.pending.Len() > 0 && !s.pending[0].WakeAt.After(now) {
		it := heap.Pop(&s.pending).(*RetryItem)
		close(it.ready)
	}
	s.armTimerLocked()
}
