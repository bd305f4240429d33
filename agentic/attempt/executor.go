// Package attempt runs a single agent attempt: it reads a provider message
// stream through a fresh stream.Adapter and reports an overflow.AttemptResult.
package attempt

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/events"
	"github.com/victorarias/agentic-relay/agentic/history"
	"github.com/victorarias/agentic-relay/agentic/message"
	"github.com/victorarias/agentic-relay/agentic/overflow"
	"github.com/victorarias/agentic-relay/agentic/repair"
	"github.com/victorarias/agentic-relay/agentic/stream"
)

const maxLineBytes = 16 << 20

// Config configures an Executor.
type Config struct {
	Source Source
	// Store persists assistant messages and supplies the session snapshot
	// used for fingerprinting. Optional.
	Store history.Store
	// Tools supplies tool schemas for validation. Optional; without it
	// tool calls are passed through unchecked.
	Tools     *agentic.Registry
	Validator *repair.Validator
	Provider  string
	Sink      events.Sink
	// Timeout bounds one attempt. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// Executor implements overflow.AttemptRunner.
type Executor struct {
	cfg Config
}

// New creates an Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Source == nil {
		return nil, errors.New("attempt: source is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = repair.NewValidator()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{cfg: cfg}, nil
}

// RunAttempt runs one attempt to completion. Only failures to open the
// stream are returned as errors; provider failures are reported through
// AttemptResult.PromptError.
func (e *Executor) RunAttempt(ctx context.Context, params overflow.AttemptParams) (overflow.AttemptResult, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	logger := e.cfg.Logger.With("session_key", params.SessionKey, "attempt", params.Attempt)

	rc, err := e.cfg.Source.Open(ctx, params)
	if err != nil {
		return overflow.AttemptResult{}, err
	}
	defer rc.Close()
	// A blocked read only returns once the stream is closed.
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()

	var store history.Appender
	if e.cfg.Store != nil {
		store = e.cfg.Store
	}
	adapter := stream.New(stream.Config{
		Sink:   e.cfg.Sink,
		Store:  store,
		Logger: logger,
		Now:    e.cfg.Now,
	})

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lines := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++
		if err := adapter.TranslateLine(ctx, line); err != nil {
			logger.Warn("skipping malformed provider message", "line", lines, "error", err)
		}
	}

	res := overflow.AttemptResult{SessionIDUsed: adapter.SessionID()}
	if res.SessionIDUsed == "" {
		res.SessionIDUsed = params.SessionID
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	case ctx.Err() != nil:
		res.Aborted = true
	case scanner.Err() != nil:
		res.PromptError = fmt.Errorf("attempt: read stream: %w", scanner.Err())
	}
	if providerErr := adapter.Err(); providerErr != nil && res.PromptError == nil {
		res.PromptError = providerErr
	}

	life := adapter.Lifecycle()
	res.Lifecycle = &life
	res.CompactionCount = life.CompactBoundaries

	msgs := adapter.Messages()
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		res.LastAssistant = &last
	}
	res.ToolCalls = e.toolCalls(context.WithoutCancel(ctx), logger, msgs)

	if e.cfg.Store != nil {
		snapshot, err := e.cfg.Store.Load(context.WithoutCancel(ctx))
		if err != nil {
			logger.Debug("session snapshot failed", "error", err)
		}
		res.MessagesSnapshot = snapshot
	}
	logger.Debug("attempt complete", "lines", lines, "messages", len(msgs), "lifecycle", life.String())
	return res, nil
}

// toolCalls validates each completed call against its schema and repairs
// the ones that fail.
func (e *Executor) toolCalls(ctx context.Context, logger *slog.Logger, msgs []message.AgentMessage) []agentic.ToolCall {
	var names []string
	if e.cfg.Tools != nil {
		var err error
		if names, err = e.cfg.Tools.Names(ctx); err != nil {
			logger.Debug("listing tools failed", "error", err)
		}
	}
	var out []agentic.ToolCall
	for _, m := range msgs {
		for _, call := range m.Calls() {
			out = append(out, e.checkCall(logger, call, names))
		}
	}
	return out
}

func (e *Executor) checkCall(logger *slog.Logger, call agentic.ToolCall, names []string) agentic.ToolCall {
	var def agentic.ToolDefinition
	known := false
	if e.cfg.Tools != nil {
		if d, err := e.cfg.Tools.Lookup(call.Name); err == nil {
			def, known = d, true
		}
	}
	if known && call.ID != "" && e.cfg.Validator.ValidateJSON(def.InputSchema, call.Input) == nil {
		return call
	}

	in := repair.Input{
		ToolName:       call.Name,
		ToolCallID:     call.ID,
		RawArguments:   call.Input,
		AvailableTools: names,
		Provider:       e.cfg.Provider,
	}
	if known {
		in.Schema = def.InputSchema
	} else if e.cfg.Tools != nil {
		if match, ok := repair.FindBestToolMatch(call.Name, names); ok {
			if d, err := e.cfg.Tools.Lookup(match); err == nil {
				in.Schema = d.InputSchema
			}
		}
	}
	fixed := repair.Repair(in)
	if !fixed.Repaired {
		return call
	}
	input, err := json.Marshal(fixed.Arguments)
	if err != nil {
		return call
	}
	logger.Info("repaired tool call", "tool", fixed.ToolName, "tool_call_id", fixed.ToolCallID, "repairs", fixed.Repairs)
	return agentic.ToolCall{
		ID:      fixed.ToolCallID,
		Name:    fixed.ToolName,
		Input:   input,
		Repairs: append(call.Repairs, fixed.Repairs...),
	}
}
