package monitoring

import (
	"time"

	"go.uber.org/zap"
)

// EventType labels pipeline lifecycle events.
type EventType string

const (
	EventCircuitStateChange EventType = "circuit_state_change"
	EventSearchComplete     EventType = "search_complete"
	EventSourceFailure      EventType = "source_failure"
)

// Event is one pipeline occurrence worth surfacing to an external sink.
type Event struct {
	Type      EventType      `json:"type"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink receives emitted events. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// ZapSink writes events to the global logger.
type ZapSink struct{}

func (ZapSink) Emit(ev Event) {
	zap.L().Info("pipeline event",
		zap.String("type", string(ev.Type)),
		zap.String("source", ev.Source),
		zap.Any("payload", ev.Payload),
	)
}

// Emitter fans events out to a sink from a buffered channel. Emit
// never blocks the caller; events are dropped when the buffer is full.
type Emitter struct {
	ch   chan Event
	done chan struct{}
}

// NewEmitter starts an emitter draining into sink. Call Close to stop.
func NewEmitter(sink Sink, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	e := &Emitter{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		for ev := range e.ch {
			sink.Emit(ev)
		}
	}()
	return e
}

// Emit queues an event, stamping the timestamp if unset. Events are
// dropped rather than blocking collection work.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// Close stops the emitter after draining queued events.
func (e *Emitter) Close() {
	close(e.ch)
	<-e.done
}
