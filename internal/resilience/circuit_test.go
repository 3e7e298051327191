package resilience

import (
	"sync"
	"testing"
	"time"
)

func failure() Classification {
	return Classification{CategoryServer, SeverityHigh, true}
}

func critical() Classification {
	return Classification{CategoryAuth, SeverityCritical, false}
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	if cb.IsOpen() {
		t.Error("new breaker should not be open")
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	for i := 0; i < 2; i++ {
		cb.RecordFailure(failure())
	}
	if cb.IsOpen() {
		t.Fatal("breaker open below threshold")
	}

	cb.RecordFailure(failure())
	if !cb.IsOpen() {
		t.Error("breaker should be open at threshold")
	}
}

func TestCircuitBreaker_CriticalTripsImmediately(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	cb.RecordFailure(critical())
	if !cb.IsOpen() {
		t.Error("a single critical failure should trip the breaker")
	}
}

func TestCircuitBreaker_SuccessDecaysFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(failure())
	cb.RecordFailure(failure())
	cb.RecordSuccess()

	count, state := cb.Counters()
	if count != 1 {
		t.Errorf("failure count = %d, want 1 after decay", count)
	}
	if state != CircuitClosed {
		t.Errorf("state = %s, want closed", state)
	}

	// Decay floors at zero.
	cb.RecordSuccess()
	cb.RecordSuccess()
	count, _ = cb.Counters()
	if count != 0 {
		t.Errorf("failure count = %d, want 0", count)
	}
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure(failure())
	if !cb.IsOpen() {
		t.Fatal("breaker should be open")
	}

	cb.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	if cb.IsOpen() {
		t.Error("first IsOpen after recovery timeout should admit a probe")
	}

	// Success in half-open closes the circuit with a clean slate.
	cb.RecordSuccess()
	count, state := cb.Counters()
	if state != CircuitClosed {
		t.Errorf("state = %s, want closed after probe success", state)
	}
	if count != 0 {
		t.Errorf("failure count = %d, want 0 after close", count)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure(failure())
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }

	if cb.IsOpen() {
		t.Fatal("expected probe admission")
	}
	cb.RecordFailure(failure())

	if !cb.IsOpen() {
		t.Error("failure while probing should reopen the circuit")
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:  1,
		RecoveryTimeout:   time.Minute,
		HalfOpenMaxProbes: 3,
	})
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure(failure())
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }

	// Three probes admitted, none reporting success.
	for i := 0; i < 3; i++ {
		if cb.IsOpen() {
			t.Fatalf("probe %d should be admitted", i+1)
		}
	}

	// Budget exhausted: circuit reopens.
	if !cb.IsOpen() {
		t.Error("exhausted probe budget should reopen the circuit")
	}
	_, state := cb.Counters()
	if state != CircuitOpen {
		t.Errorf("state = %s, want open", state)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []struct{ from, to CircuitState }
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, struct{ from, to CircuitState }{from, to})
		},
	})

	cb.RecordFailure(failure())
	cb.RecordFailure(failure())

	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != CircuitClosed || transitions[0].to != CircuitOpen {
		t.Errorf("expected closed→open, got %s→%s", transitions[0].from, transitions[0].to)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})
	cb.RecordFailure(failure())
	if !cb.IsOpen() {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.IsOpen() {
		t.Error("expected closed after reset")
	}
}

func TestSourceBreakers_GetOrCreate(t *testing.T) {
	sb := NewSourceBreakers(DefaultCircuitBreakerConfig())

	cb1 := sb.Get("ebay")
	cb2 := sb.Get("ebay")
	cb3 := sb.Get("heritage")

	if cb1 != cb2 {
		t.Error("expected same breaker for same source")
	}
	if cb1 == cb3 {
		t.Error("expected different breakers for different sources")
	}
}

func TestSourceBreakers_States(t *testing.T) {
	sb := NewSourceBreakers(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	sb.Get("heritage").RecordFailure(critical())
	sb.Get("ebay")

	states := sb.States()
	if states["heritage"] != CircuitOpen {
		t.Errorf("heritage = %s, want open", states["heritage"])
	}
	if states["ebay"] != CircuitClosed {
		t.Errorf("ebay = %s, want closed", states["ebay"])
	}
}

func TestSourceBreakers_OnStateChange(t *testing.T) {
	sb := NewSourceBreakers(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	var gotSource string
	sb.OnStateChange(func(source string, from, to CircuitState) {
		gotSource = source
	})

	sb.Get("amazon").RecordFailure(failure())
	if gotSource != "amazon" {
		t.Errorf("callback source = %q, want amazon", gotSource)
	}
}

func TestSourceBreakers_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	sb := NewSourceBreakers(DefaultCircuitBreakerConfig())
	sources := []string{"ebay", "heritage", "amazon", "whatnot"}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb := sb.Get(sources[i%len(sources)])
			if i%2 == 0 {
				cb.RecordFailure(failure())
			} else {
				cb.RecordSuccess()
			}
			_ = cb.IsOpen()
		}()
	}
	wg.Wait()
	// Just verifying no race/panic.
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
