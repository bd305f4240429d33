package repair

import (
	"encoding/json"
	"testing"
)

func TestValidator(t *testing.T) {
	v := NewValidator()
	schemaDoc := json.RawMessage(readSchema)

	if err := v.ValidateJSON(schemaDoc, json.RawMessage(`{"file_path":"a.go","limit":3}`)); err != nil {
		t.Fatalf("expected valid arguments, got %v", err)
	}
	if err := v.ValidateJSON(schemaDoc, json.RawMessage(`{"limit":3}`)); err == nil {
		t.Fatalf("expected missing required field to fail")
	}
	if err := v.ValidateJSON(schemaDoc, json.RawMessage(`{"file_path":"a.go","limit":"3"}`)); err == nil {
		t.Fatalf("expected wrong type to fail")
	}
	if err := v.ValidateJSON(schemaDoc, json.RawMessage(`{file_path: 1}`)); err == nil {
		t.Fatalf("expected malformed JSON to fail")
	}
	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("empty schema must accept everything: %v", err)
	}
	if len(v.cache) != 1 {
		t.Fatalf("expected compiled schema to be cached once, got %d", len(v.cache))
	}
}

func TestValidatorAcceptsRepairedArguments(t *testing.T) {
	v := NewValidator()
	res := Repair(Input{
		ToolCallID:   "c1",
		RawArguments: `{filePath: 'a.go', limit: '3',}`,
		Schema:       json.RawMessage(readSchema),
	})
	if err := v.Validate(json.RawMessage(readSchema), res.Arguments); err != nil {
		t.Fatalf("repaired arguments should validate: %v (repairs %v)", err, res.Repairs)
	}
}

func TestValidatorRejectsInvalidSchema(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(json.RawMessage(`{"type": 12}`), map[string]any{}); err == nil {
		t.Fatalf("expected compile error for invalid schema")
	}
}
