// Package compaction rewrites a session into a summary plus its most
// recent messages. It is the client-side recovery step the overflow
// controller runs when a provider rejects the context as too large.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/victorarias/agentic-relay/agentic/context/budget"
	"github.com/victorarias/agentic-relay/agentic/history"
	"github.com/victorarias/agentic-relay/agentic/message"
)

// Params identifies the session to compact.
type Params struct {
	SessionKey          string
	SessionID           string
	ContextWindowTokens int
	// Trigger records why compaction was requested (see TriggerOverflow).
	Trigger string
}

// Compaction triggers.
const (
	TriggerOverflow  = "overflow"
	TriggerThreshold = "threshold"
)

// Result describes a compaction outcome. OK is false when compaction was
// attempted and failed; Compacted is false when there was nothing to do.
type Result struct {
	OK               bool   `json:"ok"`
	Compacted        bool   `json:"compacted"`
	Summary          string `json:"summary,omitempty"`
	FirstKeptEntryID string `json:"first_kept_entry_id,omitempty"`
	TokensBefore     int    `json:"tokens_before,omitempty"`
	TokensAfter      int    `json:"tokens_after,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Config configures a Service.
type Config struct {
	Store history.Rewriter
	// Summarizer produces the summary for the messages being dropped.
	Summarizer budget.Compactor
	Counter    budget.TokenCounter
	// KeepRecentTokens and KeepLast select the tail that survives
	// compaction (see budget.Policy). When both are zero a quarter of the
	// context window is kept.
	KeepRecentTokens int
	KeepLast         int
	Logger           *slog.Logger
}

// Service compacts sessions on demand.
type Service struct {
	store  history.Rewriter
	cfg    Config
	logger *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("compaction: store is required")
	}
	if cfg.Summarizer == nil {
		return nil, errors.New("compaction: summarizer is required")
	}
	if cfg.Counter == nil {
		cfg.Counter = budget.CharCounter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: cfg.Store, cfg: cfg, logger: logger}, nil
}

// CompactDirect compacts the session regardless of its estimated size.
// Summarization failures are reported through Result.Reason; only store
// failures are returned as errors.
func (s *Service) CompactDirect(ctx context.Context, p Params) (Result, error) {
	return s.compact(ctx, p, message.Compact)
}

// CompactIfNeeded compacts only when the session's estimated size is over
// the budget threshold of p.ContextWindowTokens. Without a context window
// it never compacts.
func (s *Service) CompactIfNeeded(ctx context.Context, p Params) (Result, error) {
	if p.Trigger == "" {
		p.Trigger = TriggerThreshold
	}
	return s.compact(ctx, p, message.CompactIfNeeded)
}

type compactFunc func(context.Context, budget.Manager, []message.AgentMessage) ([]message.AgentMessage, string, bool, error)

func (s *Service) compact(ctx context.Context, p Params, run compactFunc) (Result, error) {
	messages, err := s.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: load session: %w", err)
	}
	before := budget.EstimateTokens(messages, s.cfg.Counter)
	if len(messages) == 0 {
		return Result{OK: true, Reason: "empty session"}, nil
	}

	mgr := budget.Manager{
		Counter:   s.cfg.Counter,
		Compactor: s.cfg.Summarizer,
		Policy:    s.policy(p.ContextWindowTokens),
	}
	compacted, summary, changed, err := run(ctx, mgr, messages)
	if err != nil {
		s.logger.Info("compaction failed", "session_key", p.SessionKey, "trigger", p.Trigger, "error", err)
		return Result{OK: false, TokensBefore: before, Reason: err.Error()}, nil
	}
	if !changed {
		return Result{OK: true, TokensBefore: before, Reason: "nothing to compact"}, nil
	}
	if err := s.store.Replace(ctx, compacted); err != nil {
		return Result{}, fmt.Errorf("compaction: rewrite session: %w", err)
	}

	res := Result{
		OK:           true,
		Compacted:    true,
		Summary:      summary,
		TokensBefore: before,
		TokensAfter:  budget.EstimateTokens(compacted, s.cfg.Counter),
	}
	if len(compacted) > 1 {
		res.FirstKeptEntryID = compacted[1].ID
	}
	s.logger.Info("session compacted",
		"session_key", p.SessionKey,
		"trigger", p.Trigger,
		"tokens_before", res.TokensBefore,
		"tokens_after", res.TokensAfter,
		"kept", len(compacted)-1)
	return res, nil
}

func (s *Service) policy(window int) budget.Policy {
	policy := budget.Policy{
		ContextWindow:    window,
		KeepRecentTokens: s.cfg.KeepRecentTokens,
		KeepLast:         s.cfg.KeepLast,
	}
	if policy.KeepRecentTokens <= 0 && policy.KeepLast <= 0 {
		if window > 0 {
			policy.KeepRecentTokens = window / 4
		} else {
			policy.KeepLast = 2
		}
	}
	return policy
}
