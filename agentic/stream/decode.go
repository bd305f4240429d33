// Package stream translates a provider's raw agent stream into canonical
// events. A stream is a sequence of loosely typed JSON messages (one per
// line on the wire); Decode turns each into a typed Message and Adapter
// folds them into events.Event values.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"
)

// ErrMalformed is returned by Decode for input that is not a JSON object.
var ErrMalformed = errors.New("stream: malformed message")

// Message is one decoded provider message. The concrete types are
// SystemInit, CompactBoundary, StatusUpdate, StreamEvent, AssistantMessage,
// ResultMessage and Unknown.
type Message interface {
	providerMessage()
}

// SystemInit starts a provider session.
type SystemInit struct {
	SessionID string
	Model     string
}

// CompactBoundary reports that the provider compacted the conversation on
// its side.
type CompactBoundary struct {
	PreTokens *int
	Trigger   string
}

// StatusUpdate carries provider status transitions ("compacting", or empty
// when the provider returns to idle).
type StatusUpdate struct {
	Status string
}

// StreamEvent wraps one token-level Messages API streaming event.
type StreamEvent struct {
	Event sdk.MessageStreamEventUnion
}

// AssistantMessage is the complete, non-streaming assistant message for a
// turn.
type AssistantMessage struct {
	Message   sdk.Message
	SessionID string
}

// ResultMessage terminates a provider run.
type ResultMessage struct {
	Subtype   string
	IsError   bool
	Errors    []string
	Result    string
	SessionID string
}

// Failed reports whether the result represents a provider error.
func (r ResultMessage) Failed() bool {
	return r.IsError || strings.HasPrefix(r.Subtype, "error_") || r.Subtype == "error"
}

// Detail returns the first available error detail.
func (r ResultMessage) Detail() string {
	for _, e := range r.Errors {
		if strings.TrimSpace(e) != "" {
			return e
		}
	}
	if strings.TrimSpace(r.Result) != "" {
		return r.Result
	}
	return r.Subtype
}

// Unknown is any message type this package does not translate.
type Unknown struct {
	Type    string
	Subtype string
	Raw     json.RawMessage
}

func (SystemInit) providerMessage()       {}
func (CompactBoundary) providerMessage()  {}
func (StatusUpdate) providerMessage()     {}
func (StreamEvent) providerMessage()      {}
func (AssistantMessage) providerMessage() {}
func (ResultMessage) providerMessage()    {}
func (Unknown) providerMessage()          {}

// Decode parses one provider message. Unknown types decode to Unknown;
// only malformed JSON is an error.
func Decode(line []byte) (Message, error) {
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}
	typ := root.Get("type").String()
	subtype := root.Get("subtype").String()
	sessionID := root.Get("session_id").String()

	switch typ {
	case "system":
		switch subtype {
		case "init":
			return SystemInit{SessionID: sessionID, Model: root.Get("model").String()}, nil
		case "compact_boundary":
			meta := root.Get("compact_metadata")
			out := CompactBoundary{Trigger: meta.Get("trigger").String()}
			if pre := meta.Get("pre_tokens"); pre.Exists() && pre.Type == gjson.Number {
				n := int(pre.Int())
				out.PreTokens = &n
			}
			return out, nil
		case "status":
			return StatusUpdate{Status: root.Get("status").String()}, nil
		}
	case "stream_event":
		event := root.Get("event")
		if !event.IsObject() {
			return nil, fmt.Errorf("%w: stream_event without event", ErrMalformed)
		}
		var ev sdk.MessageStreamEventUnion
		if err := json.Unmarshal([]byte(event.Raw), &ev); err != nil {
			return nil, fmt.Errorf("stream: decode stream_event: %w", err)
		}
		return StreamEvent{Event: ev}, nil
	case "assistant":
		msg := root.Get("message")
		if !msg.IsObject() {
			return nil, fmt.Errorf("%w: assistant without message", ErrMalformed)
		}
		var m sdk.Message
		if err := json.Unmarshal([]byte(msg.Raw), &m); err != nil {
			return nil, fmt.Errorf("stream: decode assistant message: %w", err)
		}
		return AssistantMessage{Message: m, SessionID: sessionID}, nil
	case "result":
		out := ResultMessage{
			Subtype:   subtype,
			IsError:   root.Get("is_error").Bool(),
			Result:    root.Get("result").String(),
			SessionID: sessionID,
		}
		root.Get("errors").ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() {
				out.Errors = append(out.Errors, v.Get("message").String())
			} else {
				out.Errors = append(out.Errors, v.String())
			}
			return true
		})
		return out, nil
	}
	return Unknown{Type: typ, Subtype: subtype, Raw: append(json.RawMessage(nil), line...)}, nil
}
