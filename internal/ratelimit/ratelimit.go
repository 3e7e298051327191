// Package ratelimit enforces per-source request ceilings for
// marketplace scraping: a requests-per-second limit with burst
// allowance and a sliding requests-per-minute window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Config holds the ceilings for one source.
type Config struct {
	RequestsPerSecond float64
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig is applied to sources with no explicit configuration.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 1, RequestsPerMinute: 30, Burst: 1}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = def.RequestsPerSecond
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = def.RequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
	return c
}

// sourceLimiter owns one source's state. The mutex is held across the
// minute-window wait so grants for a single source stay sequential;
// unrelated sources never touch it.
type sourceLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	window  []time.Time
	cfg     Config
}

// Limiter tracks per-source request budgets. Acquire never fails on
// its own — it delays until the request fits within both ceilings, or
// until the context is done.
type Limiter struct {
	mu      sync.RWMutex
	sources map[string]*sourceLimiter
	configs map[string]Config

	nowFunc func() time.Time
}

// New creates a limiter with per-source configs. Unknown sources get
// DefaultConfig.
func New(configs map[string]Config) *Limiter {
	cp := make(map[string]Config, len(configs))
	for k, v := range configs {
		cp[k] = v.withDefaults()
	}
	return &Limiter{
		sources: make(map[string]*sourceLimiter),
		configs: cp,
		nowFunc: time.Now,
	}
}

// Acquire blocks until the named source may issue one more request.
// The only error it returns is the context's.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	s := l.get(source)

	// Per-second ceiling with burst, via the token bucket.
	if err := s.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "ratelimit: wait for %s", source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		now := l.nowFunc()
		s.prune(now)
		if len(s.window) < s.cfg.RequestsPerMinute {
			s.window = append(s.window, now)
			return nil
		}

		// Window full: sleep until the oldest grant slides out.
		wait := s.window[0].Add(time.Minute).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrapf(ctx.Err(), "ratelimit: wait for %s", source)
		case <-timer.C:
		}
	}
}

// Window returns how many grants the source has in the trailing
// minute. Exposed for observability.
func (l *Limiter) Window(source string) int {
	s := l.get(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(l.nowFunc())
	return len(s.window)
}

func (l *Limiter) get(source string) *sourceLimiter {
	l.mu.RLock()
	s, ok := l.sources[source]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.sources[source]; ok {
		return s
	}
	cfg, ok := l.configs[source]
	if !ok {
		cfg = DefaultConfig()
	}
	s = &sourceLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
	}
	l.sources[source] = s
	return s
}

func (s *sourceLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(s.window) && s.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.window = append(s.window[:0], s.window[i:]...)
	}
}
