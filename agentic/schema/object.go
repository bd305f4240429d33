package schema

import (
	"encoding/json"
	"sort"
)

// Object is the subset of a JSON object schema needed to reason about tool
// arguments: declared properties, their accepted types and required names.
type Object struct {
	Properties map[string]Property
	Required   []string
}

// Property describes one declared property. Types holds every accepted JSON
// type; it is empty when the schema leaves the type open.
type Property struct {
	Types []string
}

// Parse extracts the object shape from a raw JSON schema. An empty payload
// yields an empty Object. Both "type": "x" and "type": ["x", "y"] are
// accepted, as are anyOf/oneOf branches that only vary the type.
func Parse(raw json.RawMessage) (Object, error) {
	obj := Object{Properties: map[string]Property{}}
	if len(raw) == 0 {
		return obj, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return obj, err
	}
	props, _ := doc["properties"].(map[string]any)
	for name, value := range props {
		prop, _ := value.(map[string]any)
		obj.Properties[name] = Property{Types: propertyTypes(prop)}
	}
	if req, ok := doc["required"].([]any); ok {
		for _, item := range req {
			if s, ok := item.(string); ok && s != "" {
				obj.Required = append(obj.Required, s)
			}
		}
	}
	return obj, nil
}

// Has reports whether name is a declared property.
func (o Object) Has(name string) bool {
	_, ok := o.Properties[name]
	return ok
}

// Names returns declared property names in sorted order.
func (o Object) Names() []string {
	names := make([]string, 0, len(o.Properties))
	for name := range o.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func propertyTypes(prop map[string]any) []string {
	if prop == nil {
		return nil
	}
	var types []string
	switch t := prop["type"].(type) {
	case string:
		types = append(types, t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, key := range []string{"anyOf", "oneOf"} {
		branches, _ := prop[key].([]any)
		for _, branch := range branches {
			if b, ok := branch.(map[string]any); ok {
				types = append(types, propertyTypes(b)...)
			}
		}
	}
	return dedupe(types)
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
