package repair

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ettle/strcase"

	"github.com/victorarias/agentic-relay/agentic/schema"
)

// normalizeNames renames argument keys that differ from a declared
// property only by camelCase/snake_case convention or letter case. Keys
// with no match pass through unchanged.
func normalizeNames(args map[string]any, obj schema.Object) []string {
	if len(obj.Properties) == 0 {
		return nil
	}
	known := obj.Names()
	var repairs []string
	for _, key := range sortedKeys(args) {
		if obj.Has(key) {
			continue
		}
		target, ok := matchName(key, known, args)
		if !ok {
			continue
		}
		args[target] = args[key]
		delete(args, key)
		repairs = append(repairs, fmt.Sprintf("renamed parameter %q to %q", key, target))
	}
	return repairs
}

func matchName(key string, known []string, args map[string]any) (string, bool) {
	snake := strcase.ToSnake(key)
	camel := strcase.ToCamel(key)
	for _, name := range known {
		if _, taken := args[name]; taken {
			continue
		}
		if name == snake || name == camel ||
			strcase.ToSnake(name) == key || strcase.ToCamel(name) == key ||
			strings.EqualFold(name, key) {
			return name, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
