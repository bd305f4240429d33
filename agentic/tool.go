package agentic

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool and the schema its arguments must satisfy.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty" yaml:"-"`
	SchemaHash  string          `json:"schema_hash,omitempty" yaml:"-"`
}

// ToolCall is a request to invoke a tool, as emitted by the model.
type ToolCall struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
	// Repairs is the audit trail left when the call had to be repaired
	// before it could be dispatched.
	Repairs []string `json:"repairs,omitempty"`
}

// ToolResult is the tool execution output.
type ToolResult struct {
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  *ToolError      `json:"error,omitempty"`
}

// ToolError is a normalized tool error payload.
type ToolError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ToolLister lists the tools available to a run.
type ToolLister interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
}
