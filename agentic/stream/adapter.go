package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/events"
	"github.com/victorarias/agentic-relay/agentic/history"
	"github.com/victorarias/agentic-relay/agentic/message"
	"github.com/victorarias/agentic-relay/agentic/usage"
	"github.com/victorarias/agentic-relay/capabilities"
)

// maxBlockIndex bounds the index-addressed block storage.
const maxBlockIndex = 1 << 12

// Config configures an Adapter.
type Config struct {
	// Sink, when set, is subscribed before any message is translated.
	Sink events.Sink
	// Store receives every completed assistant message. Append failures
	// are logged and ignored.
	Store  history.Appender
	Logger *slog.Logger
	Now    func() time.Time
}

// Adapter translates one attempt's provider messages into canonical events.
// It is owned by the goroutine driving the attempt and must not be reused
// across attempts.
type Adapter struct {
	fanout *events.Fanout
	store  history.Appender
	logger *slog.Logger
	now    func() time.Time

	sessionID  string
	compacting bool
	streaming  bool

	partial  *partialMessage
	messages []message.AgentMessage
	life     Lifecycle
	err      *events.Error
}

type partialMessage struct {
	msg   message.AgentMessage
	slots []*slot
}

// slot is the block storage for one stream index. done holds the blocks
// already closed at this index, more than one only when the index was
// reused.
type slot struct {
	typ       message.BlockType
	open      bool
	content   strings.Builder
	signature string
	done      []message.Block
}

// New creates an Adapter.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	a := &Adapter{
		fanout: events.NewFanout(logger),
		store:  cfg.Store,
		logger: logger,
		now:    now,
	}
	if cfg.Sink != nil {
		a.fanout.Subscribe(cfg.Sink)
	}
	return a
}

// Subscribe adds a subscriber and returns a function that removes it.
func (a *Adapter) Subscribe(sink events.Sink) func() {
	return a.fanout.Subscribe(sink)
}

// SessionID returns the provider session id captured from system/init.
func (a *Adapter) SessionID() string { return a.sessionID }

// Compacting reports whether a provider compaction is in progress.
func (a *Adapter) Compacting() bool { return a.compacting }

// Lifecycle returns the compaction evidence observed so far.
func (a *Adapter) Lifecycle() Lifecycle { return a.life }

// Err returns the provider error reported by a failed result, if any.
func (a *Adapter) Err() *events.Error { return a.err }

// Messages returns the assistant messages completed so far.
func (a *Adapter) Messages() []message.AgentMessage {
	out := make([]message.AgentMessage, len(a.messages))
	for i, m := range a.messages {
		out[i] = m.Clone()
	}
	return out
}

// TranslateLine decodes and translates one raw provider message.
func (a *Adapter) TranslateLine(ctx context.Context, line []byte) error {
	msg, err := Decode(line)
	if err != nil {
		return err
	}
	a.Translate(ctx, msg)
	return nil
}

// Translate folds one provider message into the adapter state, emitting
// zero or more events.
func (a *Adapter) Translate(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case SystemInit:
		if m.SessionID != "" {
			a.sessionID = m.SessionID
		}
		a.emit(events.Event{Type: events.AgentStart})
	case CompactBoundary:
		a.life.CompactBoundaries++
		compaction := events.Compaction{PreTokens: m.PreTokens, Trigger: m.Trigger}
		a.compacting = true
		a.emit(events.Event{Type: events.AutoCompactionStart, Compaction: &compaction})
		a.compacting = false
		end := compaction
		end.WillRetry = false
		a.emit(events.Event{Type: events.AutoCompactionEnd, Compaction: &end})
	case StatusUpdate:
		a.handleStatus(m.Status)
	case StreamEvent:
		a.handleStreamEvent(m.Event)
	case AssistantMessage:
		a.handleAssistant(ctx, m)
	case ResultMessage:
		a.handleResult(m)
	case Unknown:
		a.logger.Debug("ignoring provider message", "type", m.Type, "subtype", m.Subtype)
	}
}

func (a *Adapter) handleStatus(status string) {
	if strings.EqualFold(status, "compacting") {
		if !a.compacting {
			a.compacting = true
			a.life.CompactingTransitions++
		}
		return
	}
	if a.compacting {
		a.compacting = false
		a.life.IdleTransitions++
	}
}

func (a *Adapter) handleStreamEvent(event sdk.MessageStreamEventUnion) {
	switch event.Type {
	case "message_start":
		a.startMessage(event.AsMessageStart().Message)
	case "content_block_start":
		evt := event.AsContentBlockStart()
		a.startBlock(int(evt.Index), evt.ContentBlock.Type, evt.ContentBlock.Text, evt.ContentBlock.Thinking)
	case "content_block_delta":
		evt := event.AsContentBlockDelta()
		switch evt.Delta.Type {
		case "text_delta":
			a.appendDelta(int(evt.Index), message.BlockText, evt.Delta.Text)
		case "thinking_delta":
			a.appendDelta(int(evt.Index), message.BlockThinking, evt.Delta.Thinking)
		case "signature_delta":
			if s := a.slot(int(evt.Index)); s != nil {
				s.signature += evt.Delta.Signature
			}
		}
	case "content_block_stop":
		a.stopBlock(int(event.AsContentBlockStop().Index))
	case "message_delta":
		evt := event.AsMessageDelta()
		if a.partial == nil {
			return
		}
		if reason := strings.TrimSpace(string(evt.Delta.StopReason)); reason != "" {
			a.partial.msg.StopReason = reason
		}
		merged := usage.Merge(derefUsage(a.partial.msg.Usage), usage.Usage{
			Input:      int(evt.Usage.InputTokens),
			Output:     int(evt.Usage.OutputTokens),
			CacheRead:  int(evt.Usage.CacheReadInputTokens),
			CacheWrite: int(evt.Usage.CacheCreationInputTokens),
		})
		a.partial.msg.Usage = &merged
	case "message_stop":
		a.finishMessage()
	}
}

func (a *Adapter) startMessage(m sdk.Message) {
	if a.partial != nil {
		a.finishMessage()
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	u := capabilities.NormalizeUsage(int(m.Usage.InputTokens), int(m.Usage.OutputTokens), 0)
	u.CacheRead = int(m.Usage.CacheReadInputTokens)
	u.CacheWrite = int(m.Usage.CacheCreationInputTokens)
	a.partial = &partialMessage{msg: message.AgentMessage{
		ID:        id,
		Role:      message.RoleAssistant,
		Model:     string(m.Model),
		Usage:     &u,
		Timestamp: a.now(),
	}}
	a.streaming = true
	a.emit(events.Event{Type: events.MessageStart, Message: a.snapshot()})
}

// slot returns the block storage for index, growing it as needed. Stream
// events can arrive before message_start in truncated recordings; a
// partial message is allocated on demand.
func (a *Adapter) slot(index int) *slot {
	if index < 0 || index >= maxBlockIndex {
		a.logger.Debug("ignoring out-of-range block index", "index", index)
		return nil
	}
	if a.partial == nil {
		a.startMessage(sdk.Message{})
	}
	for len(a.partial.slots) <= index {
		a.partial.slots = append(a.partial.slots, &slot{})
	}
	return a.partial.slots[index]
}

func (a *Adapter) startBlock(index int, blockType, text, thinking string) {
	s := a.slot(index)
	if s == nil {
		return
	}
	switch message.BlockType(blockType) {
	case message.BlockThinking:
		a.openSlot(index, s, message.BlockThinking)
		if thinking != "" {
			a.appendDelta(index, message.BlockThinking, thinking)
		}
	case message.BlockText:
		a.openSlot(index, s, message.BlockText)
		if text != "" {
			a.appendDelta(index, message.BlockText, text)
		}
	default:
		// tool_use and server-side blocks are surfaced by the tool
		// execution path, not as message content.
		if s.open {
			a.closeSlot(index, s)
		}
	}
}

// openSlot (re)initializes the block at index. An index can be reused by a
// later block of the same message; the previous block is closed first.
func (a *Adapter) openSlot(index int, s *slot, typ message.BlockType) {
	if s.open {
		a.closeSlot(index, s)
	}
	s.typ = typ
	s.open = true
	s.content.Reset()
	s.signature = ""
	if typ == message.BlockThinking {
		a.emitUpdate(events.Update{Type: events.ThinkingStart, Index: index})
	}
}

func (a *Adapter) appendDelta(index int, typ message.BlockType, delta string) {
	s := a.slot(index)
	if s == nil {
		return
	}
	if !s.open || s.typ != typ {
		a.openSlot(index, s, typ)
	}
	s.content.WriteString(delta)
	update := events.Update{Index: index, Delta: delta, Content: s.content.String()}
	if typ == message.BlockThinking {
		update.Type = events.ThinkingDelta
	} else {
		update.Type = events.TextDelta
	}
	a.emitUpdate(update)
}

func (a *Adapter) stopBlock(index int) {
	if a.partial == nil || index < 0 || index >= len(a.partial.slots) {
		return
	}
	s := a.partial.slots[index]
	if !s.open {
		return
	}
	a.closeSlot(index, s)
}

func (a *Adapter) closeSlot(index int, s *slot) {
	s.open = false
	content := s.content.String()
	block := message.Block{Type: s.typ, Text: content, Signature: s.signature}
	s.done = append(s.done, block)
	switch s.typ {
	case message.BlockThinking:
		a.emitUpdate(events.Update{Type: events.ThinkingEnd, Index: index, Content: content})
	case message.BlockText:
		a.emitUpdate(events.Update{Type: events.TextEnd, Index: index, Content: content})
	}
}

// finishMessage closes any block still open and emits MessageEnd, so
// consumers flushing on *_end always see a drained buffer first.
func (a *Adapter) finishMessage() {
	if a.partial == nil {
		return
	}
	for i, s := range a.partial.slots {
		if s.open {
			a.closeSlot(i, s)
		}
	}
	final := a.snapshot()
	a.partial = nil
	a.emit(events.Event{Type: events.MessageEnd, Message: final})
}

func (a *Adapter) snapshot() *message.AgentMessage {
	p := a.partial
	msg := p.msg.Clone()
	msg.Blocks = nil
	for _, s := range p.slots {
		msg.Blocks = append(msg.Blocks, s.done...)
		if s.open {
			msg.Blocks = append(msg.Blocks, message.Block{Type: s.typ, Text: s.content.String(), Signature: s.signature})
		}
	}
	return &msg
}

func (a *Adapter) handleAssistant(ctx context.Context, m AssistantMessage) {
	if m.SessionID != "" && a.sessionID == "" {
		a.sessionID = m.SessionID
	}
	msg := a.convert(m.Message)

	if a.streaming {
		// Events for this turn already flowed from stream_event messages.
		a.streaming = false
		if a.partial != nil {
			a.finishMessage()
		}
	} else {
		a.replay(msg)
	}

	if a.store != nil {
		if err := a.store.Append(ctx, msg); err != nil {
			a.logger.Debug("session append failed", "message_id", msg.ID, "error", err)
		}
	}
	a.messages = append(a.messages, msg)
}

// replay emits the full event sequence for a message that arrived whole.
func (a *Adapter) replay(msg message.AgentMessage) {
	start := msg.Clone()
	start.Blocks = nil
	a.emit(events.Event{Type: events.MessageStart, Message: &start})

	current := start
	for i, block := range msg.Blocks {
		switch block.Type {
		case message.BlockThinking:
			current.Blocks = append(current.Blocks, block)
			a.emitFor(&current, events.Update{Type: events.ThinkingStart, Index: i})
			a.emitFor(&current, events.Update{Type: events.ThinkingDelta, Index: i, Delta: block.Text, Content: block.Text})
			a.emitFor(&current, events.Update{Type: events.ThinkingEnd, Index: i, Content: block.Text})
		case message.BlockText:
			current.Blocks = append(current.Blocks, block)
			a.emitFor(&current, events.Update{Type: events.TextDelta, Index: i, Delta: block.Text, Content: block.Text})
			a.emitFor(&current, events.Update{Type: events.TextEnd, Index: i, Content: block.Text})
		}
	}
	final := msg.Clone()
	a.emit(events.Event{Type: events.MessageEnd, Message: &final})
}

func (a *Adapter) convert(m sdk.Message) message.AgentMessage {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	u := capabilities.NormalizeUsage(int(m.Usage.InputTokens), int(m.Usage.OutputTokens), 0)
	u.CacheRead = int(m.Usage.CacheReadInputTokens)
	u.CacheWrite = int(m.Usage.CacheCreationInputTokens)
	out := message.AgentMessage{
		ID:         id,
		Role:       message.RoleAssistant,
		Model:      string(m.Model),
		Usage:      &u,
		StopReason: string(m.StopReason),
		Timestamp:  a.now(),
	}
	var text strings.Builder
	for _, block := range m.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			out.Blocks = append(out.Blocks, message.Block{Type: message.BlockText, Text: variant.Text})
			text.WriteString(variant.Text)
		case sdk.ThinkingBlock:
			out.Blocks = append(out.Blocks, message.Block{Type: message.BlockThinking, Text: variant.Thinking, Signature: variant.Signature})
		case sdk.ToolUseBlock:
			call := agentic.ToolCall{ID: variant.ID, Name: variant.Name, Input: toolInput(variant.Input)}
			out.Blocks = append(out.Blocks, message.Block{Type: message.BlockToolUse, ToolCall: &call})
		}
	}
	out.Content = text.String()
	if capabilities.StopReasonFromFinish(out.StopReason) == usage.StopReasonError {
		out.ErrorMessage = out.Content
	}
	return out
}

func (a *Adapter) handleResult(m ResultMessage) {
	if m.SessionID != "" && a.sessionID == "" {
		a.sessionID = m.SessionID
	}
	if a.partial != nil {
		a.finishMessage()
	}
	if !m.Failed() {
		a.emit(events.Event{Type: events.AgentEnd})
		return
	}
	kind := m.Subtype
	if kind == "" || kind == "success" {
		kind = "error"
	}
	a.err = &events.Error{Kind: kind, Message: m.Detail()}
	failure := *a.err
	a.emit(events.Event{Type: events.AgentEnd, Error: &failure})
}

func (a *Adapter) emitUpdate(update events.Update) {
	a.emitFor(a.snapshot(), update)
}

func (a *Adapter) emitFor(msg *message.AgentMessage, update events.Update) {
	snapshot := msg.Clone()
	u := update
	a.emit(events.Event{Type: events.MessageUpdate, Message: &snapshot, Update: &u})
}

func (a *Adapter) emit(e events.Event) {
	a.fanout.Emit(e)
}

func derefUsage(u *usage.Usage) usage.Usage {
	if u == nil {
		return usage.Usage{}
	}
	return *u
}

func toolInput(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

