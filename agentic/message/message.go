// Package message provides the rich internal message representation for agentic loops.
package message

import (
	"context"
	"strings"
	"time"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/context/budget"
	"github.com/victorarias/agentic-relay/agentic/usage"
)

// Role constants for message types.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// BlockType identifies a content block inside an assistant message.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockToolUse  BlockType = "tool_use"
)

// Block is one structured unit of assistant content.
type Block struct {
	Type      BlockType         `json:"type"`
	Text      string            `json:"text,omitempty"`
	Signature string            `json:"signature,omitempty"`
	ToolCall  *agentic.ToolCall `json:"tool_call,omitempty"`
}

// AgentMessage is the rich internal message representation.
// Tool calls and results are structured, not flattened to text.
type AgentMessage struct {
	ID           string               `json:"id,omitempty"`
	Role         string               `json:"role"`
	Content      string               `json:"content,omitempty"`
	Blocks       []Block              `json:"blocks,omitempty"`
	ToolCalls    []agentic.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []agentic.ToolResult `json:"tool_results,omitempty"`
	Model        string               `json:"model,omitempty"`
	Usage        *usage.Usage         `json:"usage,omitempty"`
	StopReason   string               `json:"stop_reason,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Text returns the visible text of the message: the text blocks when the
// message has any, otherwise Content.
func (m AgentMessage) Text() string {
	var b strings.Builder
	for _, block := range m.Blocks {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return m.Content
	}
	return b.String()
}

// Calls returns tool calls carried either as tool_use blocks or in ToolCalls.
func (m AgentMessage) Calls() []agentic.ToolCall {
	out := make([]agentic.ToolCall, 0, len(m.ToolCalls))
	for _, block := range m.Blocks {
		if block.Type == BlockToolUse && block.ToolCall != nil {
			out = append(out, *block.ToolCall)
		}
	}
	return append(out, m.ToolCalls...)
}

// Clone returns a deep-enough copy for snapshotting: the block and call
// slices are copied so later accumulation cannot mutate the snapshot.
func (m AgentMessage) Clone() AgentMessage {
	out := m
	if m.Blocks != nil {
		out.Blocks = append([]Block(nil), m.Blocks...)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]agentic.ToolCall(nil), m.ToolCalls...)
	}
	if m.ToolResults != nil {
		out.ToolResults = append([]agentic.ToolResult(nil), m.ToolResults...)
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	return out
}

// BudgetRole implements budget.Budgetable.
func (m AgentMessage) BudgetRole() string {
	return m.Role
}

// BudgetContent implements budget.Budgetable.
// Returns all content concatenated for token estimation.
func (m AgentMessage) BudgetContent() string {
	var b strings.Builder
	b.WriteString(m.Content)
	for _, block := range m.Blocks {
		b.WriteString(block.Text)
	}
	for _, tc := range m.Calls() {
		b.WriteString(tc.Name)
		b.Write(tc.Input)
	}
	for _, tr := range m.ToolResults {
		b.Write(tr.Output)
		if tr.Error != nil {
			b.WriteString(tr.Error.Message)
		}
	}
	return b.String()
}

// ToBudgetable converts a slice of AgentMessage to []budget.Budgetable.
func ToBudgetable(messages []AgentMessage) []budget.Budgetable {
	out := make([]budget.Budgetable, len(messages))
	for i, m := range messages {
		out[i] = m
	}
	return out
}

// CompactIfNeeded wraps budget.Manager.CompactIfNeeded for AgentMessage slices.
// It preserves the full AgentMessage structure for messages after the cut point.
// Returns: (compacted messages, summary text, whether compaction occurred, error).
func CompactIfNeeded(ctx context.Context, mgr budget.Manager, messages []AgentMessage) ([]AgentMessage, string, bool, error) {
	if len(messages) == 0 {
		return messages, "", false, nil
	}
	summary, keepCount, changed, err := mgr.CompactIfNeeded(ctx, ToBudgetable(messages))
	if err != nil || !changed {
		return messages, summary, changed, err
	}
	return withSummary(messages, summary, keepCount), summary, true, nil
}

// Compact compacts unconditionally, regardless of the budget threshold.
// Used when the provider has already rejected the context as too large.
func Compact(ctx context.Context, mgr budget.Manager, messages []AgentMessage) ([]AgentMessage, string, bool, error) {
	if len(messages) == 0 {
		return messages, "", false, nil
	}
	summary, keepCount, changed, err := mgr.Compact(ctx, ToBudgetable(messages))
	if err != nil || !changed {
		return messages, summary, changed, err
	}
	return withSummary(messages, summary, keepCount), summary, true, nil
}

func withSummary(messages []AgentMessage, summary string, keepCount int) []AgentMessage {
	// Keep original AgentMessages (with tool data) from the end
	startIdx := max(0, len(messages)-keepCount)

	result := make([]AgentMessage, 0, keepCount+1)
	result = append(result, AgentMessage{
		Role:      RoleSystem,
		Content:   summary,
		Timestamp: time.Now(),
	})
	return append(result, messages[startIdx:]...)
}
