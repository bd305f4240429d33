package repair

import (
	"fmt"
	"strings"

	"github.com/victorarias/agentic-relay/agentic/schema"
)

// relocateRequired moves the value of an undeclared key onto a missing
// required field when both normalize to the same name.
func relocateRequired(args map[string]any, obj schema.Object) []string {
	var repairs []string
	for _, field := range obj.Required {
		if _, ok := args[field]; ok {
			continue
		}
		want := normalizeKey(field)
		for _, key := range sortedKeys(args) {
			if obj.Has(key) || normalizeKey(key) != want {
				continue
			}
			args[field] = args[key]
			delete(args, key)
			repairs = append(repairs, fmt.Sprintf("moved %q to required field %q", key, field))
			break
		}
	}
	return repairs
}

func normalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(key))
}
