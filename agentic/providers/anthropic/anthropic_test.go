package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/context/budget"
	"github.com/victorarias/agentic-relay/agentic/message"
)

const summaryResponse = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":"  The user asked to read a.go; it was read.  "}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":40,"output_tokens":9}}`

func TestNewRequiresKeyAndModel(t *testing.T) {
	if _, err := New(Config{Model: "m"}); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing model error")
	}
}

func TestCompactSendsTranscript(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("unexpected api key %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, summaryResponse)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test-key", Model: "claude-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	msgs := message.ToBudgetable([]message.AgentMessage{
		{Role: message.RoleUser, Content: "read a.go"},
		{Role: message.RoleAssistant, ToolCalls: []agentic.ToolCall{{ID: "t1", Name: "read", Input: json.RawMessage(`{"path":"a.go"}`)}}},
		{Role: message.RoleTool, ToolResults: []agentic.ToolResult{{ID: "t1", Name: "read", Output: json.RawMessage(`"package main"`)}}},
	})

	summary, err := client.Compact(context.Background(), msgs)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if summary != "The user asked to read a.go; it was read." {
		t.Fatalf("unexpected summary %q", summary)
	}
	if body["model"] != "claude-test" {
		t.Fatalf("unexpected model in request: %v", body["model"])
	}
	encoded, _ := json.Marshal(body["messages"])
	for _, want := range []string{"read a.go", `tool call read({\\\"path\\\":\\\"a.go\\\"})`, "tool result read"} {
		if !strings.Contains(string(encoded), want) {
			t.Fatalf("expected transcript to contain %q, got %s", want, encoded)
		}
	}
}

func TestCompactReportsSummarizationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"request_too_large","message":"Request exceeds the maximum size"}}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "k", Model: "claude-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = client.Compact(context.Background(), []budget.Budgetable{message.AgentMessage{Role: message.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "summarization failed") || !strings.Contains(err.Error(), "request_too_large") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompactEmptyInputSkipsRequest(t *testing.T) {
	client, err := New(Config{APIKey: "k", Model: "m", BaseURL: "http://127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	summary, err := client.Compact(context.Background(), nil)
	if err != nil || summary != "" {
		t.Fatalf("expected empty summary without error, got %q %v", summary, err)
	}
}

func TestTranscriptTruncatesLargeToolResults(t *testing.T) {
	big := strings.Repeat("x", maxToolResultChars*2)
	out := transcript(message.ToBudgetable([]message.AgentMessage{{
		Role:        message.RoleTool,
		ToolResults: []agentic.ToolResult{{Name: "grep", Error: &agentic.ToolError{Message: big}}},
	}}))
	if !strings.Contains(out, "tool error grep") {
		t.Fatalf("expected tool error label, got %q", out[:80])
	}
	if strings.Count(out, "x") > maxToolResultChars {
		t.Fatalf("expected tool result to be truncated")
	}
}

func TestNewVertexValidatesConfig(t *testing.T) {
	if _, err := NewVertex(context.Background(), VertexConfig{Model: "claude"}); err == nil {
		t.Fatalf("expected missing project error")
	}
	client, err := NewVertex(context.Background(), VertexConfig{
		Project:     "proj",
		Model:       "claude-test",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}),
	})
	if err != nil {
		t.Fatalf("new vertex: %v", err)
	}
	if client.model != "claude-test" || client.maxTokens != 2048 || client.instructions != DefaultInstructions {
		t.Fatalf("unexpected client defaults: %+v", client)
	}
}
