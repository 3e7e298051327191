package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state — calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the source is failing — calls are rejected
	// until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen allows a bounded number of probe calls.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the failure count that opens the circuit.
	// Default: 5. Critical failures trip immediately regardless.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before the
	// next IsOpen query moves it to half-open. Default: 60s.
	RecoveryTimeout time.Duration

	// HalfOpenMaxProbes is how many probe calls half-open admits before
	// reopening without a success. Default: 3.
	HalfOpenMaxProbes int

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   60 * time.Second,
		HalfOpenMaxProbes: 3,
	}
}

// CircuitBreaker gates calls to a single marketplace.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	failureCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	halfOpenCalls   int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 3
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// IsOpen reports whether calls should be rejected right now. As a side
// effect it performs the lazy OPEN→HALF_OPEN transition once the
// recovery timeout has elapsed, and accounts half-open probe budget:
// each admitted probe consumes one slot, and exhausting the budget
// without a success reopens the circuit.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false
	case CircuitOpen:
		if cb.nowFunc().Before(cb.nextAttemptTime) {
			return true
		}
		cb.transition(CircuitHalfOpen)
		cb.halfOpenCalls = 1
		return false
	case CircuitHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxProbes {
			cb.reopen()
			return true
		}
		cb.halfOpenCalls++
		return false
	default:
		return false
	}
}

// RecordFailure notes a failed call. Critical classifications trip the
// breaker immediately; otherwise the failure count must reach the
// threshold. A failure while probing reopens the circuit.
func (cb *CircuitBreaker) RecordFailure(cls Classification) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cls.Critical() || cb.failureCount >= cb.cfg.FailureThreshold {
			cb.reopen()
		}
	case CircuitHalfOpen:
		cb.reopen()
	case CircuitOpen:
		// Already open: push the next attempt further out.
		cb.nextAttemptTime = cb.lastFailureTime.Add(cb.cfg.RecoveryTimeout)
	}
}

// RecordSuccess notes a successful call. In half-open it closes the
// circuit and resets the failure count; in closed it decays the count
// by one (floor zero).
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.transition(CircuitClosed)
		cb.failureCount = 0
		cb.halfOpenCalls = 0
	case CircuitClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	}
}

// State returns the current state without consuming a probe slot.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && !cb.nowFunc().Before(cb.nextAttemptTime) {
		return CircuitHalfOpen
	}
	return cb.state
}

// Counters returns the failure count and state for observability.
func (cb *CircuitBreaker) Counters() (failureCount int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.state
}

// Reset forces the circuit back to closed. Useful for manual recovery.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	old := cb.state
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.halfOpenCalls = 0
	if old != CircuitClosed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(old, CircuitClosed)
	}
}

func (cb *CircuitBreaker) reopen() {
	cb.nextAttemptTime = cb.nowFunc().Add(cb.cfg.RecoveryTimeout)
	cb.halfOpenCalls = 0
	if cb.state != CircuitOpen {
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// SourceBreakers manages circuit breakers keyed by marketplace so
// unrelated sources never contend on one lock.
type SourceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig

	// onChange, if set, receives transitions along with the source name.
	onChange func(source string, from, to CircuitState)
}

// NewSourceBreakers creates a registry of per-source circuit breakers.
func NewSourceBreakers(cfg CircuitBreakerConfig) *SourceBreakers {
	return &SourceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// OnStateChange registers a callback for transitions on any source.
// Must be called before the first Get for a source to observe it.
func (sb *SourceBreakers) OnStateChange(fn func(source string, from, to CircuitState)) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.onChange = fn
}

// Get returns the breaker for the named source, creating one lazily.
func (sb *SourceBreakers) Get(source string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[source]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	// Double-check after acquiring write lock.
	if cb, ok = sb.breakers[source]; ok {
		return cb
	}
	cfg := sb.cfg
	if sb.onChange != nil {
		onChange := sb.onChange
		cfg.OnStateChange = func(from, to CircuitState) {
			onChange(source, from, to)
		}
	}
	cb = NewCircuitBreaker(cfg)
	sb.breakers[source] = cb
	return cb
}

// States returns a snapshot of all circuit breaker states.
func (sb *SourceBreakers) States() map[string]CircuitState {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	states := make(map[string]CircuitState, len(sb.breakers))
	for name, cb := range sb.breakers {
		states[name] = cb.State()
	}
	return states
}
