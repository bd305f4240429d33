package truncate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/context/budget"
	"github.com/victorarias/agentic-relay/agentic/history"
)

// DefaultMaxShare is the fraction of the context window a single tool
// result may occupy before it counts as oversized.
const DefaultMaxShare = 0.3

// SessionConfig configures a SessionTruncator.
type SessionConfig struct {
	Store    history.Rewriter
	Counter  budget.TokenCounter
	MaxShare float64
	Mode     Mode
	Logger   *slog.Logger
}

// SessionResult reports what TruncateOversizedToolResults changed.
type SessionResult struct {
	Truncated      bool
	TruncatedCount int
	Reason         string
}

// SessionTruncator shortens oversized tool results stored in a session.
// It is the fallback used when compaction cannot bring a session back
// under the context window.
type SessionTruncator struct {
	store    history.Rewriter
	counter  budget.TokenCounter
	maxShare float64
	mode     Mode
	logger   *slog.Logger
}

// NewSessionTruncator creates a SessionTruncator.
func NewSessionTruncator(cfg SessionConfig) (*SessionTruncator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("truncate: store is required")
	}
	counter := cfg.Counter
	if counter == nil {
		counter = budget.CharCounter{}
	}
	share := cfg.MaxShare
	if share <= 0 || share >= 1 {
		share = DefaultMaxShare
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeHead
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTruncator{store: cfg.Store, counter: counter, maxShare: share, mode: mode, logger: logger}, nil
}

// LikelyHasOversizedToolResults reports whether any stored tool result
// exceeds the per-result share of contextWindowTokens.
func (s *SessionTruncator) LikelyHasOversizedToolResults(ctx context.Context, contextWindowTokens int) bool {
	limit := s.limitTokens(contextWindowTokens)
	if limit <= 0 {
		return false
	}
	messages, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Debug("session load failed", "error", err)
		return false
	}
	for _, msg := range messages {
		for _, result := range msg.ToolResults {
			if s.counter.Count(string(result.Output)) > limit {
				return true
			}
		}
	}
	return false
}

// TruncateOversizedToolResults shortens every oversized tool result and
// rewrites the session.
func (s *SessionTruncator) TruncateOversizedToolResults(ctx context.Context, contextWindowTokens int) (SessionResult, error) {
	limit := s.limitTokens(contextWindowTokens)
	if limit <= 0 {
		return SessionResult{Reason: "unknown context window"}, nil
	}
	messages, err := s.store.Load(ctx)
	if err != nil {
		return SessionResult{}, fmt.Errorf("truncate: load session: %w", err)
	}

	// Token budget converted back to bytes with the same ratio the
	// counter applies to this payload.
	opts := Options{MaxLines: DefaultMaxLines, MaxBytes: limit * bytesPerToken(s.counter)}
	count := 0
	for i := range messages {
		if len(messages[i].ToolResults) == 0 {
			continue
		}
		results := append(messages[i].ToolResults[:0:0], messages[i].ToolResults...)
		for j, result := range results {
			if s.counter.Count(string(result.Output)) <= limit {
				continue
			}
			updated, meta := s.fit(result, opts, limit)
			if !meta.Truncated {
				continue
			}
			results[j] = updated
			count++
		}
		messages[i].ToolResults = results
	}
	if count == 0 {
		return SessionResult{Reason: "no oversized tool results"}, nil
	}
	if err := s.store.Replace(ctx, messages); err != nil {
		return SessionResult{}, fmt.Errorf("truncate: rewrite session: %w", err)
	}
	s.logger.Info("truncated oversized tool results", "count", count, "limit_tokens", limit)
	return SessionResult{Truncated: true, TruncatedCount: count}, nil
}

// fit truncates result until its encoded output fits limit tokens. JSON
// escaping can make the encoded output larger than the truncated text, so
// the byte budget shrinks proportionally when the first cut overshoots.
func (s *SessionTruncator) fit(result agentic.ToolResult, opts Options, limit int) (agentic.ToolResult, Result) {
	updated, meta := s.truncateResult(result, opts)
	for i := 0; i < 4 && meta.Truncated; i++ {
		size := len(updated.Output)
		if s.counter.Count(string(updated.Output)) <= limit || size == 0 {
			break
		}
		opts.MaxBytes = opts.MaxBytes*opts.MaxBytes/size - 1
		if opts.MaxBytes <= 0 {
			break
		}
		updated, meta = s.truncateResult(result, opts)
	}
	return updated, meta
}

func (s *SessionTruncator) truncateResult(result agentic.ToolResult, opts Options) (agentic.ToolResult, Result) {
	if s.mode == ModeTail {
		return TailToolResult(result, opts)
	}
	return HeadToolResult(result, opts)
}

func (s *SessionTruncator) limitTokens(window int) int {
	if window <= 0 {
		return 0
	}
	return int(float64(window) * s.maxShare)
}

func bytesPerToken(counter budget.TokenCounter) int {
	if c, ok := counter.(budget.CharCounter); ok && c.CharsPerToken > 0 {
		return c.CharsPerToken
	}
	return 4
}
