package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestEmitterDeliversInOrder(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(sink, 16)

	emitter.Emit(Event{Type: EventCircuitStateChange, Source: "ebay"})
	emitter.Emit(Event{Type: EventSearchComplete, Payload: map[string]any{"listings": 3}})
	emitter.Close()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventCircuitStateChange, events[0].Type)
	assert.Equal(t, "ebay", events[0].Source)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp is stamped on emit")
	assert.Equal(t, EventSearchComplete, events[1].Type)
}

func TestEmitterDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	emitter := NewEmitter(sink, 1)

	// First event occupies the sink, second fills the buffer, the rest
	// must drop without blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			emitter.Emit(Event{Type: EventSourceFailure})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	close(block)
	emitter.Close()
}

type blockingSink struct {
	release <-chan struct{}
	once    sync.Once
}

func (s *blockingSink) Emit(Event) {
	s.once.Do(func() { <-s.release })
}
