package repair

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/victorarias/agentic-relay/agentic/schema"
)

// Validator checks tool arguments against their input schema. Compiled
// schemas are cached by content hash; a Validator is safe for concurrent
// use.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{cache: map[string]*jsonschema.Schema{}}
}

// Validate reports whether args satisfies raw. An empty schema accepts
// everything. args must be a decoded JSON value (map[string]any etc.).
func (v *Validator) Validate(raw json.RawMessage, args any) error {
	if len(raw) == 0 {
		return nil
	}
	compiled, err := v.compile(raw)
	if err != nil {
		return err
	}
	return compiled.Validate(args)
}

// ValidateJSON decodes input and validates it. Input that is not valid
// JSON is reported as an error without consulting the schema.
func (v *Validator) ValidateJSON(raw json.RawMessage, input json.RawMessage) error {
	var args any
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Errorf("repair: arguments are not valid JSON: %w", err)
	}
	return v.Validate(raw, args)
}

func (v *Validator) compile(raw json.RawMessage) (*jsonschema.Schema, error) {
	hash, err := schema.HashJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("repair: invalid schema: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if compiled, ok := v.cache[hash]; ok {
		return compiled, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("repair: invalid schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	url := hash + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("repair: add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("repair: compile schema: %w", err)
	}
	v.cache[hash] = compiled
	return compiled, nil
}
