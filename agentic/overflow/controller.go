// Package overflow drives the attempts of one agent turn and recovers from
// context overflow by compacting or truncating the session between them.
package overflow

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/compaction"
	"github.com/victorarias/agentic-relay/agentic/message"
	"github.com/victorarias/agentic-relay/agentic/stream"
	"github.com/victorarias/agentic-relay/agentic/telemetry"
	"github.com/victorarias/agentic-relay/agentic/truncate"
	"github.com/victorarias/agentic-relay/agentic/usage"
	"github.com/victorarias/agentic-relay/capabilities"
)

const (
	DefaultMaxAttempts           = 6
	DefaultMaxCompactionAttempts = 3
)

// TimeoutText is the payload returned when an attempt timed out before any
// reply text was produced.
const TimeoutText = "Request timed out before a response was generated."

const (
	overflowText          = "Context overflow: the conversation is too large for the model. Start a new session or use a model with a larger context window."
	compactionFailureText = "Context overflow: summarizing the conversation failed because the request was too large. Start a new session."
)

// AttemptParams is passed to each attempt.
type AttemptParams struct {
	Attempt    int
	SessionKey string
	// SessionID is the provider session id reported by the previous attempt,
	// empty on the first one.
	SessionID string
}

// AttemptResult is what one attempt reports back.
type AttemptResult struct {
	PromptError      error
	LastAssistant    *message.AgentMessage
	CompactionCount  int
	SessionIDUsed    string
	MessagesSnapshot []message.AgentMessage
	Lifecycle        *stream.Lifecycle
	Aborted          bool
	TimedOut         bool
	// ToolCalls are the completed calls of the attempt, already repaired
	// where they failed validation.
	ToolCalls []agentic.ToolCall
}

// AttemptRunner runs one attempt. A returned error is treated like
// AttemptResult.PromptError.
type AttemptRunner interface {
	RunAttempt(ctx context.Context, params AttemptParams) (AttemptResult, error)
}

// AttemptFunc adapts a function into an AttemptRunner.
type AttemptFunc func(ctx context.Context, params AttemptParams) (AttemptResult, error)

// RunAttempt calls f(ctx, params).
func (f AttemptFunc) RunAttempt(ctx context.Context, params AttemptParams) (AttemptResult, error) {
	return f(ctx, params)
}

// Compactor summarizes the session to free context space.
type Compactor interface {
	CompactDirect(ctx context.Context, params compaction.Params) (compaction.Result, error)
}

// Truncator shrinks oversized tool results stored in the session.
type Truncator interface {
	LikelyHasOversizedToolResults(ctx context.Context, contextWindowTokens int) bool
	TruncateOversizedToolResults(ctx context.Context, contextWindowTokens int) (truncate.SessionResult, error)
}

// Config configures a Controller.
type Config struct {
	Attempts  AttemptRunner
	Compactor Compactor
	Truncator Truncator
	Telemetry telemetry.Emitter
	Tracer    trace.Tracer
	Logger    *slog.Logger

	Runtime             string
	Provider            string
	SessionKey          string
	ContextWindowTokens int

	MaxAttempts           int
	MaxCompactionAttempts int
}

// Payload is one piece of user-visible output.
type Payload struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error,omitempty"`
}

// Meta describes how a turn ended.
type Meta struct {
	Attempts           int        `json:"attempts"`
	CompactionAttempts int        `json:"compaction_attempts"`
	Truncations        int        `json:"truncations,omitempty"`
	Aborted            bool       `json:"aborted,omitempty"`
	TimedOut           bool       `json:"timed_out,omitempty"`
	SessionID          string     `json:"session_id,omitempty"`
	Error              *TurnError `json:"error,omitempty"`
}

// TurnResult is the final result of a turn.
type TurnResult struct {
	Payloads  []Payload          `json:"payloads"`
	ToolCalls []agentic.ToolCall `json:"tool_calls,omitempty"`
	Meta      Meta               `json:"meta"`
}

// Controller runs attempts strictly one after another. A Controller holds
// no per-turn state and may be reused across turns.
type Controller struct {
	cfg Config
}

// retryState is owned by a single Run call.
type retryState struct {
	meta        Meta
	fingerprint string
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxCompactionAttempts <= 0 {
		cfg.MaxCompactionAttempts = DefaultMaxCompactionAttempts
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Nop{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg}
}

// Run drives attempts until one succeeds or recovery is exhausted.
//
// Terminal outcomes return both a TurnResult carrying an error payload and
// the *TurnError. Attempt errors that are not overflow related are returned
// unchanged with an empty TurnResult.
func (c *Controller) Run(ctx context.Context) (TurnResult, error) {
	if c.cfg.Attempts == nil {
		return TurnResult{}, ErrRunnerRequired
	}
	ctx, span := c.cfg.Tracer.Start(ctx, "overflow.turn", trace.WithAttributes(
		attribute.String("session_key", c.cfg.SessionKey),
		attribute.String("provider", c.cfg.Provider),
	))
	result, err := c.run(ctx)
	telemetry.EndSpan(span, err)
	return result, err
}

func (c *Controller) run(ctx context.Context) (TurnResult, error) {
	state := &retryState{}
	logger := c.cfg.Logger.With("session_key", c.cfg.SessionKey, "provider", c.cfg.Provider)

	for {
		if state.meta.Attempts >= c.cfg.MaxAttempts {
			return c.terminal(ctx, state, nil, &TurnError{
				Kind:    KindContextOverflow,
				Message: overflowText,
				Reason:  ReasonAttemptsExhausted,
			})
		}
		state.meta.Attempts++

		res := c.attempt(ctx, state)
		if res.SessionIDUsed != "" {
			state.meta.SessionID = res.SessionIDUsed
		}

		if res.Aborted {
			state.meta.Aborted = true
			return TurnResult{Payloads: replyPayloads(res.LastAssistant), ToolCalls: res.ToolCalls, Meta: state.meta}, nil
		}
		if timedOut(res) {
			state.meta.TimedOut = true
			if payloads := replyPayloads(res.LastAssistant); len(payloads) > 0 {
				return TurnResult{Payloads: payloads, ToolCalls: res.ToolCalls, Meta: state.meta}, nil
			}
			return c.terminal(ctx, state, &res, &TurnError{Kind: KindTimeout, Message: TimeoutText})
		}

		class, detail := Classify(res)
		c.cfg.Telemetry.Emit(ctx, telemetry.Event{Metric: telemetry.MetricAttempt, Fields: c.fields("outcome", class.String())})
		logger.Debug("attempt finished", "attempt", state.meta.Attempts, "outcome", class.String())

		switch class {
		case ClassClean:
			return TurnResult{Payloads: replyPayloads(res.LastAssistant), ToolCalls: res.ToolCalls, Meta: state.meta}, nil
		case ClassOther:
			return TurnResult{}, res.PromptError
		case ClassCompactionFailure:
			logger.Warn("compaction failure, not retrying", "error", detail)
			return c.terminal(ctx, state, &res, &TurnError{Kind: KindCompactionFailure, Message: compactionFailureText})
		}

		if turnErr := c.recover(ctx, logger, state, res); turnErr != nil {
			return c.terminal(ctx, state, &res, turnErr)
		}
	}
}

func (c *Controller) attempt(ctx context.Context, state *retryState) AttemptResult {
	ctx, span := c.cfg.Tracer.Start(ctx, "overflow.attempt", trace.WithAttributes(
		attribute.Int("attempt", state.meta.Attempts),
	))
	res, err := c.cfg.Attempts.RunAttempt(ctx, AttemptParams{
		Attempt:    state.meta.Attempts,
		SessionKey: c.cfg.SessionKey,
		SessionID:  state.meta.SessionID,
	})
	if err != nil && res.PromptError == nil {
		res.PromptError = err
	}
	telemetry.EndSpan(span, res.PromptError)
	return res
}

// recover runs one round of the overflow recovery protocol. A nil return
// means the session changed and the attempt should be retried.
func (c *Controller) recover(ctx context.Context, logger *slog.Logger, state *retryState, res AttemptResult) *TurnError {
	if capabilities.RequiresLifecycleEvidence(c.cfg.Runtime) && !hasLifecycleEvidence(res) {
		logger.Warn("overflow without compaction lifecycle evidence, failing fast", "runtime", c.cfg.Runtime)
		c.failFast(ctx, ReasonNoCompactionSignal)
		return &TurnError{Kind: KindContextOverflow, Message: overflowText, Reason: ReasonNoCompactionSignal}
	}

	fingerprint := Fingerprint(res.MessagesSnapshot, res.SessionIDUsed)
	if fingerprint != "" && fingerprint == state.fingerprint {
		logger.Warn("overflow with unchanged session state, failing fast", "attempt", state.meta.Attempts)
		c.failFast(ctx, ReasonNoStateDelta)
		return &TurnError{Kind: KindContextOverflow, Message: overflowText, Reason: ReasonNoStateDelta}
	}
	state.fingerprint = fingerprint

	if state.meta.CompactionAttempts >= c.cfg.MaxCompactionAttempts {
		c.cfg.Telemetry.Emit(ctx, telemetry.Event{Metric: telemetry.MetricExhausted, Fields: c.fields("compaction_attempts", state.meta.CompactionAttempts)})
		logger.Warn("compaction attempts exhausted", "compaction_attempts", state.meta.CompactionAttempts)
		return &TurnError{Kind: KindContextOverflow, Message: overflowText, Reason: ReasonCompactionExhausted}
	}

	if c.compact(ctx, logger, state, res) {
		return nil
	}
	if c.truncate(ctx, logger, state) {
		return nil
	}
	c.cfg.Telemetry.Emit(ctx, telemetry.Event{Metric: telemetry.MetricExhausted, Fields: c.fields("compaction_attempts", state.meta.CompactionAttempts)})
	return &TurnError{Kind: KindContextOverflow, Message: overflowText, Reason: ReasonRecoveryFailed}
}

func (c *Controller) compact(ctx context.Context, logger *slog.Logger, state *retryState, res AttemptResult) bool {
	if c.cfg.Compactor == nil {
		return false
	}
	state.meta.CompactionAttempts++
	ctx, span := c.cfg.Tracer.Start(ctx, "overflow.compaction", trace.WithAttributes(
		attribute.Int("compaction_attempt", state.meta.CompactionAttempts),
	))
	out, err := c.cfg.Compactor.CompactDirect(ctx, compaction.Params{
		SessionKey:          c.cfg.SessionKey,
		SessionID:           res.SessionIDUsed,
		ContextWindowTokens: c.cfg.ContextWindowTokens,
		Trigger:             compaction.TriggerOverflow,
	})
	telemetry.EndSpan(span, err)

	outcome := "failed"
	switch {
	case err != nil:
		logger.Info("compaction errored", "compaction_attempt", state.meta.CompactionAttempts, "error", err)
	case out.OK && out.Compacted:
		outcome = "compacted"
		logger.Info("session compacted", "compaction_attempt", state.meta.CompactionAttempts,
			"tokens_before", out.TokensBefore, "tokens_after", out.TokensAfter)
	case out.OK:
		outcome = "unchanged"
		logger.Info("compaction made no change", "reason", out.Reason)
	default:
		logger.Info("compaction failed", "reason", out.Reason)
	}
	c.cfg.Telemetry.Emit(ctx, telemetry.Event{Metric: telemetry.MetricCompaction, Fields: c.fields("outcome", outcome)})
	return outcome == "compacted"
}

func (c *Controller) truncate(ctx context.Context, logger *slog.Logger, state *retryState) bool {
	if c.cfg.Truncator == nil || !c.cfg.Truncator.LikelyHasOversizedToolResults(ctx, c.cfg.ContextWindowTokens) {
		return false
	}
	out, err := c.cfg.Truncator.TruncateOversizedToolResults(ctx, c.cfg.ContextWindowTokens)
	outcome := "failed"
	switch {
	case err != nil:
		logger.Info("tool result truncation errored", "error", err)
	case out.Truncated:
		outcome = "truncated"
		state.meta.Truncations++
		logger.Info("tool results truncated", "truncated_count", out.TruncatedCount)
	default:
		outcome = "unchanged"
		logger.Info("tool result truncation made no change", "reason", out.Reason)
	}
	fields := c.fields("outcome", outcome)
	fields["truncated_count"] = out.TruncatedCount
	c.cfg.Telemetry.Emit(ctx, telemetry.Event{Metric: telemetry.MetricTruncation, Fields: fields})
	return outcome == "truncated"
}

func (c *Controller) failFast(ctx context.Context, reason string) {
	c.cfg.Telemetry.Emit(ctx, telemetry.Event{Metric: telemetry.MetricFailFast, Fields: c.fields("reason", reason)})
}

func (c *Controller) terminal(ctx context.Context, state *retryState, res *AttemptResult, turnErr *TurnError) (TurnResult, error) {
	state.meta.Error = turnErr
	out := TurnResult{
		Payloads: []Payload{{Text: turnErr.Message, IsError: true}},
		Meta:     state.meta,
	}
	if res != nil {
		out.ToolCalls = res.ToolCalls
	}
	c.cfg.Logger.WarnContext(ctx, "turn failed", "session_key", c.cfg.SessionKey,
		"kind", string(turnErr.Kind), "reason", turnErr.Reason, "attempts", state.meta.Attempts)
	return out, turnErr
}

func (c *Controller) fields(kv ...any) map[string]any {
	fields := map[string]any{
		"session_key": c.cfg.SessionKey,
		"provider":    c.cfg.Provider,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return fields
}

func hasLifecycleEvidence(res AttemptResult) bool {
	if res.CompactionCount > 0 {
		return true
	}
	return res.Lifecycle != nil && res.Lifecycle.HasCompactionEvidence()
}

// timedOut treats a prompt error that only reports a timeout like the
// TimedOut flag.
func timedOut(res AttemptResult) bool {
	if res.TimedOut {
		return true
	}
	return res.PromptError != nil && IsTimeoutError(res.PromptError.Error()) && !IsLikelyContextOverflowError(res.PromptError.Error())
}

func replyPayloads(m *message.AgentMessage) []Payload {
	if m == nil {
		return nil
	}
	text := strings.TrimSpace(m.Text())
	if text == "" {
		return nil
	}
	isErr := capabilities.StopReasonFromFinish(m.StopReason) == usage.StopReasonError
	return []Payload{{Text: text, IsError: isErr}}
}
