package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victorarias/agentic-relay/agentic/repair"
)

type repairOptions struct {
	tool       string
	callID     string
	args       string
	schemaPath string
	tools      []string
	provider   string
}

type repairOutput struct {
	repair.Result
	Valid           bool   `json:"valid"`
	ValidationError string `json:"validation_error,omitempty"`
}

func (a *app) repairCmd() *cobra.Command {
	var opts repairOptions
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair a malformed tool call and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRepair(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.tool, "tool", "", "Tool name as emitted by the model")
	cmd.Flags().StringVar(&opts.callID, "id", "", "Tool call id as emitted by the model")
	cmd.Flags().StringVar(&opts.args, "args", "", "Raw tool arguments (any text; use @file to read a file)")
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "JSON schema file for the tool input (default: from config)")
	cmd.Flags().StringSliceVar(&opts.tools, "tools", nil, "Available tool names (default: from config)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Provider or model id (default: from config)")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func (a *app) runRepair(cmd *cobra.Command, opts repairOptions) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	available := opts.tools
	if len(available) == 0 {
		if available, err = reg.Names(cmd.Context()); err != nil {
			return err
		}
	}
	providerName := opts.provider
	if providerName == "" {
		providerName = a.cfg.Provider
	}

	rawArgs := opts.args
	if strings.HasPrefix(rawArgs, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(rawArgs, "@"))
		if err != nil {
			return fmt.Errorf("repair: read arguments: %w", err)
		}
		rawArgs = string(data)
	}

	var schema json.RawMessage
	switch {
	case opts.schemaPath != "":
		data, err := os.ReadFile(opts.schemaPath)
		if err != nil {
			return fmt.Errorf("repair: read schema: %w", err)
		}
		schema = data
	default:
		name := opts.tool
		if match, ok := repair.FindBestToolMatch(name, available); ok {
			name = match
		}
		if def, err := reg.Lookup(name); err == nil {
			schema = def.InputSchema
		}
	}

	result := repair.Repair(repair.Input{
		ToolName:       opts.tool,
		ToolCallID:     opts.callID,
		RawArguments:   rawArgs,
		Schema:         schema,
		AvailableTools: available,
		Provider:       providerName,
	})
	out := repairOutput{Result: result, Valid: true}
	if err := repair.NewValidator().Validate(schema, toAny(result.Arguments)); err != nil {
		out.Valid = false
		out.ValidationError = err.Error()
	}
	for _, entry := range result.Repairs {
		a.logger.Debug("repair", "tool", result.ToolName, "entry", entry)
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// toAny round-trips through JSON so the validator sees plain decoded
// values (float64 numbers, []any slices).
func toAny(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}
