package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victorarias/agentic-relay/agentic/history"
	"github.com/victorarias/agentic-relay/agentic/message"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RELAY_CONFIG", "RELAY_PROVIDER", "RELAY_RUNTIME", "RELAY_SESSION_KEY",
		"RELAY_SESSION_DB", "RELAY_SESSION_DIR", "RELAY_LOG_LEVEL", "RELAY_LOG_FORMAT", "RELAY_METRICS",
		"RELAY_MAX_ATTEMPTS", "RELAY_MAX_COMPACTION_ATTEMPTS", "RELAY_CONTEXT_WINDOW",
		"RELAY_ATTEMPT_TIMEOUT_SECONDS", "RELAY_KEEP_LAST",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL",
		"VERTEX_PROJECT", "VERTEX_LOCATION", "VERTEX_MODEL", "RELAY_ALLOWED_TOOLS",
	} {
		t.Setenv(key, "")
	}
}

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func assistant(id, text string) string {
	quoted, _ := json.Marshal(text)
	return fmt.Sprintf(`{"type":"assistant","session_id":"s-1","message":{"id":%q,"type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":%s}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":2}}}`, id, quoted)
}

const (
	initLine      = `{"type":"system","subtype":"init","session_id":"s-1","model":"claude-test"}`
	successLine   = `{"type":"result","subtype":"success","is_error":false,"result":"ok","session_id":"s-1"}`
	overflowLine  = `{"type":"result","subtype":"error_during_execution","is_error":true,"errors":["prompt is too long: 210000 tokens > 200000 maximum"],"session_id":"s-1"}`
	malformedLine = `{"type":`
)

func TestReplayPrintsEvents(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := writeLines(t, dir, "stream.jsonl", initLine, malformedLine, assistant("msg_1", "hello"), successLine)

	t.Setenv("RELAY_SESSION_DIR", dir)
	out, errOut, err := execute(t, "replay", path, "--session", "replay-test")
	require.NoError(t, err)
	require.Contains(t, out, `"type":"agent_start"`)
	require.Contains(t, out, `"type":"message_end"`)
	require.Contains(t, errOut, "session=s-1 messages=1 skipped=1")

	_, statErr := os.Stat(filepath.Join(dir, ".relay", "sessions", "replay-test.json"))
	require.NoError(t, statErr)
}

func TestReplayReportsProviderFailure(t *testing.T) {
	isolateEnv(t)
	path := writeLines(t, t.TempDir(), "stream.jsonl", initLine, overflowLine)
	_, _, err := execute(t, "replay", path, "--quiet")
	require.ErrorContains(t, err, "prompt is too long")
}

func TestRepairCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	schema := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schema, []byte(`{"type":"object","properties":{"path":{"type":"string"},"limit":{"type":"integer"}},"required":["path"]}`), 0o644))

	out, _, err := execute(t, "repair", "--tool", "raed", "--tools", "read,write", "--schema", schema, "--args", `{path: 'a.go', limit: '10',}`)
	require.NoError(t, err)

	var got struct {
		Repaired  bool           `json:"repaired"`
		ToolName  string         `json:"tool_name"`
		Arguments map[string]any `json:"arguments"`
		Repairs   []string       `json:"repairs"`
		Valid     bool           `json:"valid"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.True(t, got.Repaired)
	require.True(t, got.Valid)
	require.Equal(t, "read", got.ToolName)
	require.Equal(t, map[string]any{"path": "a.go", "limit": float64(10)}, got.Arguments)
	require.NotEmpty(t, got.Repairs)
}

func TestRepairHonoursAllowedTools(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeLines(t, t.TempDir(), "relay.yaml",
		"tools:",
		"  - name: read",
		"  - name: write",
		"allowed_tools: [read]",
	)

	out, _, err := execute(t, "repair", "--config", cfgPath, "--tool", "wrte", "--args", `{}`)
	require.NoError(t, err)
	var got struct {
		ToolName string `json:"tool_name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "wrte", got.ToolName, "write is hidden by the allowlist")

	t.Setenv("RELAY_ALLOWED_TOOLS", "read,write")
	out, _, err = execute(t, "repair", "--config", cfgPath, "--tool", "wrte", "--args", `{}`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "write", got.ToolName)
}

func TestRunRecoversFromOverflow(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RELAY_METRICS", "prometheus")
	dir := t.TempDir()
	first := writeLines(t, dir, "1.jsonl", initLine,
		assistant("m1", strings.Repeat("first ", 50)),
		assistant("m2", strings.Repeat("second ", 50)),
		assistant("m3", strings.Repeat("third ", 50)),
		overflowLine)
	second := writeLines(t, dir, "2.jsonl", initLine, assistant("m4", "recovered"), successLine)

	out, errOut, err := execute(t, "run", first, second)
	require.NoError(t, err)

	var result struct {
		Payloads []struct {
			Text string `json:"text"`
		} `json:"payloads"`
		Meta struct {
			Attempts           int `json:"attempts"`
			CompactionAttempts int `json:"compaction_attempts"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 2, result.Meta.Attempts)
	require.Equal(t, 1, result.Meta.CompactionAttempts)
	require.Len(t, result.Payloads, 1)
	require.Equal(t, "recovered", result.Payloads[0].Text)
	require.Contains(t, errOut, `relay_overflow_compactions_total{outcome=compacted,provider=anthropic} 1`)
}

func TestRunFailsFastForClaudeSDK(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RELAY_RUNTIME", "claude-sdk")
	path := writeLines(t, t.TempDir(), "1.jsonl", initLine, overflowLine)

	out, _, err := execute(t, "run", path)
	require.ErrorContains(t, err, "no_compaction_signal")
	require.Contains(t, out, `"kind": "context_overflow"`)
}

func TestRunCompactsOversizedStoredSession(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv("RELAY_SESSION_DIR", dir)
	t.Setenv("RELAY_CONTEXT_WINDOW", "300")

	store, err := history.NewFileStore(dir, "stored")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.NoError(t, store.Append(context.Background(), message.AgentMessage{
			ID:      fmt.Sprintf("old%d", i),
			Role:    message.RoleUser,
			Content: strings.Repeat("x", 200),
		}))
	}

	path := writeLines(t, dir, "1.jsonl", initLine, assistant("m1", "done"), successLine)
	_, _, err = execute(t, "run", "--session", "stored", path)
	require.NoError(t, err)

	msgs, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, message.RoleSystem, msgs[0].Role)
	require.Less(t, len(msgs), 9)
	require.Equal(t, "m1", msgs[len(msgs)-1].ID)
}
