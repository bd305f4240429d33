// Package telemetry carries the metric and tracing collaborators used by the
// overflow controller and the attempt executor.
package telemetry

import (
	"context"
	"sync"
)

// Metric names emitted at controller decision points.
const (
	MetricFailFast   = "claude_sdk.overflow.fail_fast"
	MetricCompaction = "overflow.compaction"
	MetricTruncation = "overflow.truncation"
	MetricExhausted  = "overflow.exhausted"
	MetricAttempt    = "overflow.attempt"
)

// Event is one metric emission.
type Event struct {
	Metric string
	Fields map[string]any
}

// Emitter receives metric events. Implementations must not block.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// EmitterFunc adapts a function into an Emitter.
type EmitterFunc func(ctx context.Context, e Event)

// Emit calls f(ctx, e).
func (f EmitterFunc) Emit(ctx context.Context, e Event) {
	if f != nil {
		f(ctx, e)
	}
}

// Nop discards every event.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(context.Context, Event) {}

// Multi forwards each event to every non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	out := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []Emitter

func (m multi) Emit(ctx context.Context, e Event) {
	for _, em := range m {
		em.Emit(ctx, e)
	}
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	r.events = append(r.events, Event{Metric: e.Metric, Fields: fields})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the recorded events whose metric equals name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Metric == name {
			out = append(out, e)
		}
	}
	return out
}
