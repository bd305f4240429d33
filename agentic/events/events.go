// Package events defines the canonical, provider-agnostic event protocol
// emitted while an agent turn is running. Every downstream consumer (UI
// rendering, transcript writers, hooks) subscribes to these events rather
// than to provider streams.
package events

import "github.com/victorarias/agentic-relay/agentic/message"

// Type identifies an event.
type Type string

const (
	AgentStart          Type = "agent_start"
	AgentEnd            Type = "agent_end"
	MessageStart        Type = "message_start"
	MessageUpdate       Type = "message_update"
	MessageEnd          Type = "message_end"
	AutoCompactionStart Type = "auto_compaction_start"
	AutoCompactionEnd   Type = "auto_compaction_end"
)

// UpdateType identifies the content sub-event carried by MessageUpdate.
type UpdateType string

const (
	ThinkingStart UpdateType = "thinking_start"
	ThinkingDelta UpdateType = "thinking_delta"
	ThinkingEnd   UpdateType = "thinking_end"
	TextDelta     UpdateType = "text_delta"
	TextEnd       UpdateType = "text_end"
)

// Update is a content sub-event. Content is always the full accumulated
// value of the block; Delta is the incremental chunk (empty on *End).
type Update struct {
	Type    UpdateType `json:"type"`
	Index   int        `json:"index"`
	Delta   string     `json:"delta"`
	Content string     `json:"content"`
}

// Error is the structured failure attached to AgentEnd.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}

// Compaction describes an auto-compaction notification.
type Compaction struct {
	PreTokens *int   `json:"pre_tokens,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
	WillRetry bool   `json:"will_retry"`
}

// Event captures a single agent lifecycle update. Which pointer fields are
// set depends on Type: Message for message_*, Update for message_update,
// Error for a failed agent_end, Compaction for auto_compaction_*.
type Event struct {
	Type       Type                  `json:"type"`
	Message    *message.AgentMessage `json:"message,omitempty"`
	Update     *Update               `json:"update,omitempty"`
	Error      *Error                `json:"error,omitempty"`
	Compaction *Compaction           `json:"compaction,omitempty"`
}

// Sink consumes events (streaming, logging, UI).
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Recorder is a Sink that keeps every event it receives.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) { r.Events = append(r.Events, e) }

// Types returns the recorded event types in order. MessageUpdate events are
// expanded to their update type so sequences read naturally in tests.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		if e.Type == MessageUpdate && e.Update != nil {
			out = append(out, string(e.Update.Type))
			continue
		}
		out = append(out, string(e.Type))
	}
	return out
}
