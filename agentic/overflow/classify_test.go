package overflow

import (
	"errors"
	"testing"

	"github.com/victorarias/agentic-relay/agentic/message"
)

func TestIsContextOverflowError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"", false},
		{"request_too_large", true},
		{"Request exceeds the maximum size", true},
		{"This model's maximum context length is 8192 tokens", true},
		{"prompt is too long: 201000 tokens > 200000 maximum", true},
		{"input is too long for requested model", true},
		{"413 Payload Too Large", true},
		{"rate limit exceeded: 30000 tokens per minute", false},
		{"429 Too Many Requests", false},
		{"connection reset by peer", false},
	}
	for _, tt := range tests {
		if got := IsContextOverflowError(tt.msg); got != tt.want {
			t.Fatalf("IsContextOverflowError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsCompactionFailureError(t *testing.T) {
	if !IsCompactionFailureError("Request too large: summarization failed") {
		t.Fatalf("expected compaction failure")
	}
	if IsCompactionFailureError("request too large") {
		t.Fatalf("plain overflow is not a compaction failure")
	}
	if IsCompactionFailureError("summarization failed: network error") {
		t.Fatalf("summarization error without size signature is not a compaction failure")
	}
}

func TestIsLikelyContextOverflowError(t *testing.T) {
	if !IsLikelyContextOverflowError("the context is too long for this model") {
		t.Fatalf("expected likely overflow")
	}
	if !IsLikelyContextOverflowError("too many tokens in request") {
		t.Fatalf("expected likely overflow")
	}
	if IsLikelyContextOverflowError("rate limit: context budget exceeded for org") {
		t.Fatalf("rate limits are never overflow")
	}
}

func TestIsTimeoutError(t *testing.T) {
	if !IsTimeoutError("context deadline exceeded") || !IsTimeoutError("request timed out") {
		t.Fatalf("expected timeout")
	}
	if IsTimeoutError("bad request") {
		t.Fatalf("unexpected timeout")
	}
}

func TestClassifyPrefersPromptError(t *testing.T) {
	res := AttemptResult{
		PromptError: errors.New("connection refused"),
		LastAssistant: &message.AgentMessage{
			StopReason:   "error",
			ErrorMessage: "prompt is too long",
		},
	}
	if class, msg := Classify(res); class != ClassOther || msg != "connection refused" {
		t.Fatalf("expected prompt error to win, got %v %q", class, msg)
	}
	res.PromptError = nil
	if class, _ := Classify(res); class != ClassContextOverflow {
		t.Fatalf("expected stale assistant overflow, got %v", class)
	}
}

func TestClassifyIgnoresNonErrorAssistant(t *testing.T) {
	res := AttemptResult{LastAssistant: &message.AgentMessage{StopReason: "end_turn", Content: "prompt is too long"}}
	if class, _ := Classify(res); class != ClassClean {
		t.Fatalf("expected clean, got %v", class)
	}
}

func TestFingerprintDependsOnSessionID(t *testing.T) {
	snap := []message.AgentMessage{{ID: "a", Role: message.RoleUser, Content: "x"}}
	if Fingerprint(snap, "s1") == Fingerprint(snap, "s2") {
		t.Fatalf("expected session id to change the fingerprint")
	}
	if Fingerprint(snap, "s1") != Fingerprint(append([]message.AgentMessage(nil), snap...), "s1") {
		t.Fatalf("expected equal snapshots to fingerprint equally")
	}
}

func TestTurnErrorIs(t *testing.T) {
	err := error(&TurnError{Kind: KindTimeout, Message: TimeoutText})
	if !errors.Is(err, ErrTimeout) || errors.Is(err, ErrContextOverflow) {
		t.Fatalf("unexpected errors.Is behaviour")
	}
}
