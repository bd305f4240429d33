package events

import (
	"fmt"
	"log/slog"
)

// Fanout delivers each event synchronously to every subscriber in
// subscription order. A panicking subscriber is logged and skipped; the
// remaining subscribers still receive the event.
//
// Fanout is not safe for concurrent use; it is owned by the run that
// created it.
type Fanout struct {
	subs   []*subscription
	logger *slog.Logger
}

type subscription struct {
	sink   Sink
	active bool
}

// NewFanout creates a Fanout that logs subscriber failures to logger
// (slog.Default when nil).
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{logger: logger}
}

// Subscribe registers sink and returns a function that removes it.
func (f *Fanout) Subscribe(sink Sink) func() {
	if sink == nil {
		return func() {}
	}
	sub := &subscription{sink: sink, active: true}
	f.subs = append(f.subs, sub)
	return func() {
		sub.active = false
		for i, s := range f.subs {
			if s == sub {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of active subscribers.
func (f *Fanout) Len() int { return len(f.subs) }

// Emit implements Sink.
func (f *Fanout) Emit(e Event) {
	subs := append([]*subscription(nil), f.subs...)
	for _, sub := range subs {
		if !sub.active {
			continue
		}
		f.deliver(sub.sink, e)
	}
}

func (f *Fanout) deliver(sink Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("event subscriber panicked",
				"event_type", string(e.Type),
				"panic", fmt.Sprint(r))
		}
	}()
	sink.Emit(e)
}
