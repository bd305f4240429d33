// Package repair turns malformed tool calls into best-effort valid ones.
//
// Repair is a total function: every input produces a concrete argument map
// (possibly empty) and an ordered audit trail describing each mutation.
// Stages run in a fixed order: call id, tool name, argument resolution,
// provider unwrapping, parameter names, type coercion, required fields.
package repair

import (
	"encoding/json"
	"fmt"

	"github.com/victorarias/agentic-relay/agentic/schema"
	"github.com/victorarias/agentic-relay/capabilities"
)

// Input is a tool call as emitted by the model.
type Input struct {
	ToolName   string
	ToolCallID string
	// RawArguments may be a map, a JSON string, json.RawMessage, []byte,
	// a slice, nil or any other value the provider produced.
	RawArguments   any
	Schema         json.RawMessage
	AvailableTools []string
	Provider       string
}

// Result is the repaired call. Repaired is true exactly when Repairs is
// non-empty.
type Result struct {
	Repaired   bool           `json:"repaired"`
	ToolName   string         `json:"tool_name"`
	ToolCallID string         `json:"tool_call_id"`
	Arguments  map[string]any `json:"arguments"`
	Repairs    []string       `json:"repairs"`
}

// Repair runs the full pipeline.
func Repair(in Input) Result {
	var repairs []string
	record := func(entries ...string) {
		repairs = append(repairs, entries...)
	}

	id, note := repairCallID(in.ToolCallID)
	record(note...)

	name := in.ToolName
	if len(in.AvailableTools) > 0 && !contains(in.AvailableTools, name) {
		if match, ok := FindBestToolMatch(name, in.AvailableTools); ok {
			record(fmt.Sprintf("resolved tool name %q to %q", name, match))
			name = match
		}
	}

	args, notes := resolveArguments(in.RawArguments)
	record(notes...)

	obj, err := schema.Parse(in.Schema)
	if err != nil {
		obj = schema.Object{Properties: map[string]schema.Property{}}
	}

	args, notes = unwrap(args, capabilities.ProviderFamily(in.Provider), obj)
	record(notes...)
	record(normalizeNames(args, obj)...)
	record(coerceTypes(args, obj)...)
	record(relocateRequired(args, obj)...)

	if repairs == nil {
		repairs = []string{}
	}
	return Result{
		Repaired:   len(repairs) > 0,
		ToolName:   name,
		ToolCallID: id,
		Arguments:  args,
		Repairs:    repairs,
	}
}

func contains(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}
