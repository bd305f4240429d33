package repair

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/victorarias/agentic-relay/agentic/schema"
)

// coerceTypes converts argument values to the types their schema
// properties declare. A value already satisfying any declared type is left
// alone; otherwise the declared types are tried in order and the first
// successful conversion wins.
func coerceTypes(args map[string]any, obj schema.Object) []string {
	var repairs []string
	for _, name := range obj.Names() {
		value, ok := args[name]
		if !ok {
			continue
		}
		types := obj.Properties[name].Types
		if len(types) == 0 || satisfiesAny(value, types) {
			continue
		}
		for _, typ := range types {
			if converted, ok := coerce(value, typ); ok {
				args[name] = converted
				repairs = append(repairs, fmt.Sprintf("coerced %q from %s to %s", name, describe(value), typ))
				break
			}
		}
	}
	return repairs
}

func satisfiesAny(value any, types []string) bool {
	for _, typ := range types {
		if satisfies(value, typ) {
			return true
		}
	}
	return false
}

func satisfies(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	}
	return false
}

func coerce(value any, typ string) (any, bool) {
	switch typ {
	case "boolean":
		switch v := value.(type) {
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1":
				return true, true
			case "false", "0":
				return false, true
			}
		case float64:
			if v == 1 {
				return true, true
			}
			if v == 0 {
				return false, true
			}
		}
	case "number", "integer":
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		if typ == "integer" {
			return math.Round(f), true
		}
		return f, true
	case "string":
		switch v := value.(type) {
		case nil, string:
			return nil, false
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			return string(data), true
		}
	case "array":
		if value == nil {
			return nil, false
		}
		if _, isArray := value.([]any); isArray {
			return nil, false
		}
		return []any{value}, true
	case "object":
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		parsed, _, ok := FixJSON(strings.TrimSpace(s))
		if obj, isObj := parsed.(map[string]any); ok && isObj {
			return obj, true
		}
	}
	return nil, false
}
