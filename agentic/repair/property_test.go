package repair

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/agnivade/levenshtein"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRepairProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	malformed := gen.OneConstOf(
		"", "null", "undefined", "{", "}", "{'a': 1", "{a: 1,}", `{"a": [1, 2,`,
		"garbage", "'", `{"a":"unterminated`, "[", ":::", "{,}", "\uFEFF{", "[{'x': 1}]",
	)

	properties.Property("repair is total over malformed strings", prop.ForAll(
		func(prefix string, fixed string, suffix string) bool {
			res := Repair(Input{RawArguments: prefix + fixed + suffix, Provider: "grok"})
			return res.Arguments != nil && res.Repaired == (len(res.Repairs) > 0)
		},
		gen.AnyString(),
		malformed,
		gen.AnyString(),
	))

	properties.Property("fix-up records nothing for valid JSON objects", prop.ForAll(
		func(values map[string]string) bool {
			data, err := json.Marshal(values)
			if err != nil {
				return false
			}
			_, repairs, ok := FixJSON(string(data))
			return ok && len(repairs) == 0
		},
		gen.MapOf(gen.AlphaString(), gen.AnyString()),
	))

	properties.Property("fuzzy match stays within edit distance 3", prop.ForAll(
		func(name string, tools []string) bool {
			match, ok := FindBestToolMatch(name, tools)
			if !ok {
				return true
			}
			for _, tool := range tools {
				if strings.EqualFold(tool, name) {
					return strings.EqualFold(match, name)
				}
			}
			return levenshtein.ComputeDistance(name, match) <= MaxToolNameDistance
		},
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
