package repair

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// resolveArguments turns raw provider arguments of unknown shape into an
// object.
func resolveArguments(raw any) (map[string]any, []string) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return cloneMap(v), nil
	case json.RawMessage:
		return resolveBytes(v)
	case []byte:
		return resolveBytes(v)
	case string:
		return resolveString(v)
	case []any:
		if obj, ok := singleKeyElement(v); ok {
			return cloneMap(obj), []string{"unwrapped single-element argument array"}
		}
	default:
		if obj, ok := stringKeyedMap(raw); ok {
			return obj, nil
		}
	}
	return map[string]any{}, []string{fmt.Sprintf("discarded arguments of type %s; using {}", describe(raw))}
}

// stringKeyedMap converts typed maps such as map[string]string into plain
// decoded JSON values.
func stringKeyedMap(raw any) (map[string]any, bool) {
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func resolveBytes(raw []byte) (map[string]any, []string) {
	if json.Valid(raw) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			if _, isString := v.(string); !isString {
				return resolveArguments(v)
			}
		}
	}
	return resolveString(string(raw))
}

func resolveString(raw string) (map[string]any, []string) {
	trimmed := strings.TrimSpace(raw)
	switch trimmed {
	case "":
		return map[string]any{}, nil
	case "null", "undefined":
		return map[string]any{}, []string{fmt.Sprintf("replaced %s arguments with {}", trimmed)}
	}
	value, repairs, ok := FixJSON(trimmed)
	if !ok {
		return map[string]any{}, []string{"could not parse arguments as JSON; using {}"}
	}
	obj, notes := asObject(value)
	return obj, append(repairs, notes...)
}

// asObject accepts a parsed JSON value as arguments: objects pass
// through, a JSON string holding JSON is decoded once more and a one-item
// array of a single-key object is unwrapped.
func asObject(value any) (map[string]any, []string) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return map[string]any{}, []string{"replaced null arguments with {}"}
	case string:
		inner, repairs, ok := FixJSON(strings.TrimSpace(v))
		if obj, isObj := inner.(map[string]any); ok && isObj {
			return obj, append([]string{"decoded double-encoded JSON arguments"}, repairs...)
		}
	case []any:
		if obj, ok := singleKeyElement(v); ok {
			return obj, []string{"unwrapped single-element argument array"}
		}
	}
	return map[string]any{}, []string{fmt.Sprintf("discarded arguments of type %s; using {}", describe(value))}
}

func singleKeyElement(items []any) (map[string]any, bool) {
	if len(items) != 1 {
		return nil, false
	}
	obj, ok := items[0].(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, false
	}
	return obj, true
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// describe names a value's JSON type for audit entries.
func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
