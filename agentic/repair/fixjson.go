package repair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][A-Za-z0-9_$]*)\s*:`)
)

const byteOrderMark = "\uFEFF"

// FixJSON parses raw as JSON, falling back through a cascade of fix-ups.
// The first stage that produces valid JSON wins and is the only one
// recorded. Valid input parses in the first stage and yields no repairs.
//
// Stage order is fixed: direct parse, byte-order mark, single quotes,
// trailing commas, bare keys, missing outer braces, missing closers, and a
// last combined pass over the original input. The single-quote
// substitution is kept as the base for the stages after it even when it
// does not parse on its own.
func FixJSON(raw string) (any, []string, bool) {
	if v, ok := parse(raw); ok {
		return v, nil, true
	}

	base := raw
	if strings.HasPrefix(base, byteOrderMark) {
		base = strings.TrimPrefix(base, byteOrderMark)
		if v, ok := parse(base); ok {
			return v, []string{"fixed JSON: stripped byte-order mark"}, true
		}
	}
	base = strings.TrimSpace(base)

	suffix := ""
	if strings.Contains(base, "'") {
		base = strings.ReplaceAll(base, "'", `"`)
		if v, ok := parse(base); ok {
			return v, []string{"fixed JSON: replaced single quotes with double quotes"}, true
		}
		suffix = " after replacing single quotes"
	}

	stages := []struct {
		desc  string
		apply func(string) (string, bool)
	}{
		{"removed trailing commas", removeTrailingCommas},
		{"quoted bare object keys", quoteBareKeys},
		{"wrapped key/value pairs in braces", wrapBareObject},
		{"added missing closing brackets", closeBrackets},
	}
	for _, stage := range stages {
		fixed, changed := stage.apply(base)
		if !changed {
			continue
		}
		if v, ok := parse(fixed); ok {
			return v, []string{"fixed JSON: " + stage.desc + suffix}, true
		}
	}

	if v, ok := parse(combinedFix(raw)); ok {
		return v, []string{"fixed JSON: applied combined quote, comma, key and bracket repairs"}, true
	}
	return nil, nil, false
}

// combinedFix applies every textual fix in one pass, starting again from
// the original input rather than from the partially fixed base.
func combinedFix(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(raw, byteOrderMark))
	s = strings.ReplaceAll(s, "'", `"`)
	s, _ = removeTrailingCommas(s)
	s, _ = quoteBareKeys(s)
	if wrapped, ok := wrapBareObject(s); ok {
		// The leading key only matches the bare-key pattern once braced.
		wrapped, _ = quoteBareKeys(wrapped)
		return wrapped
	}
	s, _ = closeBrackets(s)
	return s
}

func parse(s string) (any, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

func removeTrailingCommas(s string) (string, bool) {
	out := trailingCommaPattern.ReplaceAllString(s, "$1")
	return out, out != s
}

func quoteBareKeys(s string) (string, bool) {
	out := bareKeyPattern.ReplaceAllString(s, `$1"$2":`)
	return out, out != s
}

// wrapBareObject turns `"a": 1, "b": 2` into an object.
func wrapBareObject(s string) (string, bool) {
	if s == "" || s[0] == '{' || s[0] == '[' || !strings.Contains(s, ":") {
		return s, false
	}
	out, _ := closeBrackets("{" + s)
	return out, true
}

// closeBrackets appends the closers for every bracket left open, ignoring
// brackets inside string literals.
func closeBrackets(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return s, false
	}
	var b strings.Builder
	if inString {
		b.WriteString(s)
	} else {
		b.WriteString(strings.TrimRight(strings.TrimSpace(s), ","))
	}
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), true
}
