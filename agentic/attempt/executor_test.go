package attempt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/compaction"
	"github.com/victorarias/agentic-relay/agentic/events"
	"github.com/victorarias/agentic-relay/agentic/history"
	"github.com/victorarias/agentic-relay/agentic/message"
	"github.com/victorarias/agentic-relay/agentic/overflow"
)

const readSchema = `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func initLine(session string) string {
	return fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%s,"model":"claude-test"}`, quote(session))
}

func assistantLine(id, text, toolName, toolInput string) string {
	content := fmt.Sprintf(`{"type":"text","text":%s}`, quote(text))
	if toolName != "" {
		content += fmt.Sprintf(`,{"type":"tool_use","id":"toolu_1","name":%s,"input":%s}`, quote(toolName), toolInput)
	}
	return fmt.Sprintf(`{"type":"assistant","session_id":"s-1","message":{"id":%s,"type":"message","role":"assistant","model":"claude-test","content":[%s],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":4}}}`, quote(id), content)
}

func resultLine(errMsg string) string {
	if errMsg == "" {
		return `{"type":"result","subtype":"success","is_error":false,"result":"ok","session_id":"s-1"}`
	}
	return fmt.Sprintf(`{"type":"result","subtype":"error_during_execution","is_error":true,"errors":[%s],"session_id":"s-1"}`, quote(errMsg))
}

func compactBoundaryLine() string {
	return `{"type":"system","subtype":"compact_boundary","compact_metadata":{"trigger":"auto","pre_tokens":190000}}`
}

func lines(ls ...string) Source {
	return SourceFunc(func(context.Context, overflow.AttemptParams) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(ls, "\n") + "\n")), nil
	})
}

func readRegistry(t *testing.T) *agentic.Registry {
	t.Helper()
	reg := agentic.NewRegistry()
	require.NoError(t, reg.Register(agentic.ToolDefinition{Name: "read", InputSchema: json.RawMessage(readSchema)}))
	return reg
}

func TestRunAttemptCleanStream(t *testing.T) {
	store := history.NewMemoryStore()
	rec := &events.Recorder{}
	exec, err := New(Config{
		Source: lines(initLine("s-1"), assistantLine("msg_1", "hello", "read", `{"path":"a.go"}`), resultLine("")),
		Store:  store,
		Tools:  readRegistry(t),
		Sink:   rec,
	})
	require.NoError(t, err)

	res, err := exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1, SessionKey: "k"})
	require.NoError(t, err)
	require.NoError(t, res.PromptError)
	require.Equal(t, "s-1", res.SessionIDUsed)
	require.NotNil(t, res.LastAssistant)
	require.Equal(t, "hello", res.LastAssistant.Text())
	require.Len(t, res.MessagesSnapshot, 1)
	require.Len(t, res.ToolCalls, 1)
	require.Equal(t, "toolu_1", res.ToolCalls[0].ID)
	require.Empty(t, res.ToolCalls[0].Repairs)
	require.Equal(t, []string{"agent_start", "message_start", "text_delta", "text_end", "message_end", "agent_end"}, rec.Types())
}

func TestRunAttemptReportsProviderError(t *testing.T) {
	exec, err := New(Config{Source: lines(initLine("s-2"), resultLine("prompt is too long: 201000 tokens > 200000 maximum"))})
	require.NoError(t, err)

	res, err := exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1})
	require.NoError(t, err)
	require.Error(t, res.PromptError)
	require.Contains(t, res.PromptError.Error(), "prompt is too long")
	class, _ := overflow.Classify(res)
	require.Equal(t, overflow.ClassContextOverflow, class)
}

func TestRunAttemptRepairsToolCalls(t *testing.T) {
	exec, err := New(Config{
		Source: lines(assistantLine("msg_1", "", "raed", `{"Path":"a.go"}`)),
		Tools:  readRegistry(t),
	})
	require.NoError(t, err)

	res, err := exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	call := res.ToolCalls[0]
	require.Equal(t, "read", call.Name)
	require.JSONEq(t, `{"path":"a.go"}`, string(call.Input))
	require.NotEmpty(t, call.Repairs)
}

func TestRunAttemptCountsLifecycleEvidence(t *testing.T) {
	exec, err := New(Config{Source: lines(
		initLine("s-3"),
		`{"type":"system","subtype":"status","status":"compacting"}`,
		compactBoundaryLine(),
		`{"type":"system","subtype":"status","status":null}`,
		resultLine(""),
	)})
	require.NoError(t, err)

	res, err := exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Lifecycle)
	require.Equal(t, 1, res.Lifecycle.CompactBoundaries)
	require.Equal(t, 1, res.Lifecycle.CompactingTransitions)
	require.Equal(t, 1, res.CompactionCount)
}

func TestRunAttemptSkipsMalformedLines(t *testing.T) {
	exec, err := New(Config{Source: lines("not json", "", initLine("s-4"), assistantLine("m", "still here", "", ""))})
	require.NoError(t, err)

	res, err := exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1})
	require.NoError(t, err)
	require.NoError(t, res.PromptError)
	require.Equal(t, "still here", res.LastAssistant.Text())
}

func TestRunAttemptTimesOut(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	exec, err := New(Config{
		Source:  SourceFunc(func(context.Context, overflow.AttemptParams) (io.ReadCloser, error) { return pr, nil }),
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	res, err := exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1, SessionID: "prev"})
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.False(t, res.Aborted)
	require.Equal(t, "prev", res.SessionIDUsed)
}

func TestRunAttemptAborted(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	exec, err := New(Config{Source: SourceFunc(func(context.Context, overflow.AttemptParams) (io.ReadCloser, error) { return pr, nil })})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	res, err := exec.RunAttempt(ctx, overflow.AttemptParams{Attempt: 1})
	require.NoError(t, err)
	require.True(t, res.Aborted)
}

func TestRunAttemptOpenError(t *testing.T) {
	exec, err := New(Config{Source: Files{filepath.Join(t.TempDir(), "missing.jsonl")}})
	require.NoError(t, err)
	_, err = exec.RunAttempt(context.Background(), overflow.AttemptParams{Attempt: 1})
	require.ErrorContains(t, err, "open recording")
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestFilesRepeatsLastRecording(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "1.jsonl")
	second := filepath.Join(dir, "2.jsonl")
	require.NoError(t, os.WriteFile(first, []byte("one\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("two\n"), 0o644))

	for attempt, want := range map[int]string{0: "one\n", 1: "one\n", 2: "two\n", 5: "two\n"} {
		rc, err := Files{first, second}.Open(context.Background(), overflow.AttemptParams{Attempt: attempt})
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, want, string(got), "attempt %d", attempt)
	}
	_, err := Files{}.Open(context.Background(), overflow.AttemptParams{Attempt: 1})
	require.Error(t, err)
}

func TestControllerRecoversThroughCompaction(t *testing.T) {
	var seed []message.AgentMessage
	for i := 0; i < 6; i++ {
		seed = append(seed, message.AgentMessage{
			ID:      fmt.Sprintf("u%d", i),
			Role:    message.RoleUser,
			Content: strings.Repeat("earlier context ", 20),
		})
	}
	store := history.NewMemoryStore(seed...)

	attempts := []string{
		strings.Join([]string{initLine("s-9"), resultLine("prompt is too long")}, "\n"),
		strings.Join([]string{initLine("s-9"), assistantLine("msg_ok", "recovered", "", ""), resultLine("")}, "\n"),
	}
	source := SourceFunc(func(_ context.Context, p overflow.AttemptParams) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(attempts[p.Attempt-1])), nil
	})
	exec, err := New(Config{Source: source, Store: store})
	require.NoError(t, err)
	svc, err := compaction.New(compaction.Config{Store: store, Summarizer: compaction.Extractive{PerMessage: 40}, KeepLast: 2})
	require.NoError(t, err)

	ctrl := overflow.New(overflow.Config{Attempts: exec, Compactor: svc, SessionKey: "k", Provider: "anthropic"})
	res, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Meta.Attempts)
	require.Equal(t, 1, res.Meta.CompactionAttempts)
	require.Equal(t, []overflow.Payload{{Text: "recovered"}}, res.Payloads)

	msgs, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, message.RoleSystem, msgs[0].Role)
	require.Equal(t, "recovered", msgs[len(msgs)-1].Text())
}
