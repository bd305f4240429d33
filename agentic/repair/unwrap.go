package repair

import (
	"fmt"
	"strings"

	"github.com/victorarias/agentic-relay/agentic/schema"
	"github.com/victorarias/agentic-relay/capabilities"
)

// unwrap lifts arguments out of a provider-introduced envelope key.
// Wrapping and GLM providers are unwrapped whenever an envelope key is
// present; other providers only when the envelope is the sole key and the
// schema does not declare a property of that name.
func unwrap(args map[string]any, family capabilities.Family, obj schema.Object) (map[string]any, []string) {
	for _, key := range family.UnwrapKeys() {
		value, ok := args[key]
		if !ok {
			continue
		}
		if family == capabilities.FamilyDefault && (len(args) != 1 || obj.Has(key)) {
			return args, nil
		}
		inner, fixes, ok := envelopeObject(value)
		if !ok {
			continue
		}
		out := cloneMap(inner)
		for k, v := range args {
			if k == key {
				continue
			}
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
		label := string(family)
		if label == "" {
			label = "default"
		}
		repairs := []string{fmt.Sprintf("unwrapped arguments from %q wrapper key (%s provider)", key, label)}
		return out, append(repairs, fixes...)
	}
	return args, nil
}

// envelopeObject reads the wrapped value as an object. A string value is
// run through FixJSON and only accepted if it yields an object.
func envelopeObject(value any) (map[string]any, []string, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil, true
	case string:
		parsed, fixes, ok := FixJSON(strings.TrimSpace(v))
		if !ok {
			return nil, nil, false
		}
		obj, isObj := parsed.(map[string]any)
		return obj, fixes, isObj
	}
	return nil, nil, false
}
