package overflow

import (
	"regexp"
	"strings"

	"github.com/victorarias/agentic-relay/agentic/message"
	"github.com/victorarias/agentic-relay/agentic/usage"
	"github.com/victorarias/agentic-relay/capabilities"
)

// Class is the outcome of one attempt as seen by the controller.
type Class int

const (
	ClassClean Class = iota
	ClassContextOverflow
	ClassCompactionFailure
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassClean:
		return "clean"
	case ClassContextOverflow:
		return "context_overflow"
	case ClassCompactionFailure:
		return "compaction_failure"
	default:
		return "other"
	}
}

var (
	overflowSignatures = []string{
		"request_too_large",
		"request exceeds the maximum size",
		"context length exceeded",
		"context_length_exceeded",
		"maximum context length",
		"prompt is too long",
		"exceeds model context window",
		"model_context_window_exceeded",
		"context window exceeded",
		"input is too long",
		"context overflow",
	}
	tooLargeSignatures = []string{
		"request_too_large",
		"request too large",
		"request exceeds the maximum size",
		"prompt is too long",
	}
	summarizationSignatures = []string{
		"summarization failed",
		"compaction failed",
		"failed to summarize",
		"failed to compact",
	}
	rateLimitSignatures = []string{
		"rate limit",
		"rate_limit",
		"ratelimit",
		"tokens per minute",
		"too many requests",
	}
	timeoutSignatures = []string{
		"timed out",
		"timeout",
		"deadline exceeded",
	}

	status413 = regexp.MustCompile(`\b413\b`)
	status429 = regexp.MustCompile(`\b429\b`)
)

// IsContextOverflowError reports whether msg carries a known context
// overflow signature. Rate-limit errors never count.
func IsContextOverflowError(msg string) bool {
	m := strings.ToLower(msg)
	if m == "" || isRateLimit(m) {
		return false
	}
	if containsAny(m, overflowSignatures) {
		return true
	}
	return status413.MatchString(m) && strings.Contains(m, "too large")
}

// IsCompactionFailureError reports whether msg says the request was too
// large and that summarization itself failed.
func IsCompactionFailureError(msg string) bool {
	m := strings.ToLower(msg)
	if m == "" {
		return false
	}
	tooLarge := containsAny(m, tooLargeSignatures) || (status413.MatchString(m) && strings.Contains(m, "too large"))
	return tooLarge && containsAny(m, summarizationSignatures)
}

// IsLikelyContextOverflowError widens IsContextOverflowError with looser
// wording seen from less common providers.
func IsLikelyContextOverflowError(msg string) bool {
	if IsContextOverflowError(msg) {
		return true
	}
	m := strings.ToLower(msg)
	if m == "" || isRateLimit(m) {
		return false
	}
	if strings.Contains(m, "context") && containsAny(m, []string{"too long", "too large", "exceed", "overflow"}) {
		return true
	}
	return containsAny(m, []string{"too many tokens", "token limit exceeded"})
}

// IsTimeoutError reports whether msg describes a timeout.
func IsTimeoutError(msg string) bool {
	return containsAny(strings.ToLower(msg), timeoutSignatures)
}

// Classify decides how the controller treats an attempt result and returns
// the error text that decided it. The last assistant message is consulted
// only when the attempt returned no prompt error.
func Classify(res AttemptResult) (Class, string) {
	if res.PromptError != nil {
		msg := res.PromptError.Error()
		switch {
		case IsCompactionFailureError(msg):
			return ClassCompactionFailure, msg
		case IsLikelyContextOverflowError(msg):
			return ClassContextOverflow, msg
		default:
			return ClassOther, msg
		}
	}
	if msg, ok := assistantError(res.LastAssistant); ok {
		switch {
		case IsCompactionFailureError(msg):
			return ClassCompactionFailure, msg
		case IsLikelyContextOverflowError(msg):
			return ClassContextOverflow, msg
		}
	}
	return ClassClean, ""
}

func assistantError(m *message.AgentMessage) (string, bool) {
	if m == nil || capabilities.StopReasonFromFinish(m.StopReason) != usage.StopReasonError {
		return "", false
	}
	if m.ErrorMessage != "" {
		return m.ErrorMessage, true
	}
	return m.Text(), true
}

func isRateLimit(m string) bool {
	return containsAny(m, rateLimitSignatures) || status429.MatchString(m)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
