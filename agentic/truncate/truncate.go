// Package truncate shortens oversized text, tool results and, through
// SessionTruncator, the tool results stored in a session.
package truncate

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/victorarias/agentic-relay/agentic"
)

const (
	DefaultMaxLines = 2000
	DefaultMaxBytes = 50 * 1024
)

// Options configures truncation thresholds.
type Options struct {
	MaxLines int
	MaxBytes int
}

// Result captures truncation output and metadata.
type Result struct {
	Content            string
	Truncated          bool
	TruncatedBy        string // "lines" | "bytes" | ""
	TotalLines         int
	TotalBytes         int
	OutputLines        int
	OutputBytes        int
	LastLinePartial    bool
	FirstLineOverLimit bool
}

// Mode controls truncation direction for tool results.
type Mode string

const (
	ModeHead Mode = "head"
	ModeTail Mode = "tail"
)

// Head keeps the first lines of content. Lines are never split unless the
// first line alone exceeds the byte limit.
func Head(content string, opts Options) Result {
	maxLines, maxBytes := normalize(opts)
	lines := strings.Split(content, "\n")
	if fits(content, lines, maxLines, maxBytes) {
		return untouched(content, len(lines))
	}

	if len(lines[0]) > maxBytes {
		partial := truncateStringToBytes(lines[0], maxBytes)
		res := cut(content, len(lines), partial, "bytes")
		if partial == "" {
			res.OutputLines = 0
		}
		res.FirstLineOverLimit = true
		return res
	}

	kept, by := 0, "lines"
	size := 0
	for kept < len(lines) && kept < maxLines {
		lineBytes := len(lines[kept])
		if kept > 0 {
			lineBytes++
		}
		if size+lineBytes > maxBytes {
			by = "bytes"
			break
		}
		size += lineBytes
		kept++
	}
	return cut(content, len(lines), strings.Join(lines[:kept], "\n"), by)
}

// Tail keeps the last lines of content. The earliest kept line may be
// partial when it alone exceeds the byte limit.
func Tail(content string, opts Options) Result {
	maxLines, maxBytes := normalize(opts)
	lines := strings.Split(content, "\n")
	if fits(content, lines, maxLines, maxBytes) {
		return untouched(content, len(lines))
	}

	start, by := len(lines), "lines"
	size := 0
	partial := ""
	for start > 0 && len(lines)-start < maxLines {
		line := lines[start-1]
		lineBytes := len(line)
		if start < len(lines) {
			lineBytes++
		}
		if size+lineBytes > maxBytes {
			by = "bytes"
			if start == len(lines) {
				partial = truncateStringToBytesFromEnd(line, maxBytes)
			}
			break
		}
		size += lineBytes
		start--
	}
	if partial != "" {
		res := cut(content, len(lines), partial, by)
		res.LastLinePartial = true
		return res
	}
	return cut(content, len(lines), strings.Join(lines[start:], "\n"), by)
}

// HeadToolResult truncates tool output from the head.
func HeadToolResult(result agentic.ToolResult, opts Options) (agentic.ToolResult, Result) {
	return truncateToolResult(result, opts, ModeHead)
}

// TailToolResult truncates tool output from the tail.
func TailToolResult(result agentic.ToolResult, opts Options) (agentic.ToolResult, Result) {
	return truncateToolResult(result, opts, ModeTail)
}

// truncateToolResult truncates the text of a tool output. Output holding a
// JSON string is truncated as text and re-encoded; any other payload is
// truncated as raw bytes and stored as a JSON string so the result stays
// valid JSON.
func truncateToolResult(result agentic.ToolResult, opts Options, mode Mode) (agentic.ToolResult, Result) {
	if len(result.Output) == 0 {
		return result, Result{}
	}
	content := string(result.Output)
	var text string
	if err := json.Unmarshal(result.Output, &text); err == nil {
		content = text
	}

	var res Result
	if mode == ModeTail {
		res = Tail(content, opts)
	} else {
		res = Head(content, opts)
	}
	if res.Truncated {
		encoded, err := json.Marshal(res.Content)
		if err != nil {
			return result, Result{}
		}
		result.Output = encoded
	}
	return result, res
}

func fits(content string, lines []string, maxLines, maxBytes int) bool {
	return len(lines) <= maxLines && len(content) <= maxBytes
}

func untouched(content string, lines int) Result {
	return Result{
		Content:     content,
		TotalLines:  lines,
		TotalBytes:  len(content),
		OutputLines: lines,
		OutputBytes: len(content),
	}
}

func cut(content string, totalLines int, out, by string) Result {
	outputLines := 0
	if out != "" || by == "lines" {
		outputLines = strings.Count(out, "\n") + 1
	}
	return Result{
		Content:     out,
		Truncated:   true,
		TruncatedBy: by,
		TotalLines:  totalLines,
		TotalBytes:  len(content),
		OutputLines: outputLines,
		OutputBytes: len(out),
	}
}

func normalize(opts Options) (int, int) {
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return maxLines, maxBytes
}

func truncateStringToBytesFromEnd(value string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(value) <= maxBytes {
		return value
	}
	start := len(value) - maxBytes
	for start < len(value) && !utf8.RuneStart(value[start]) {
		start++
	}
	if start >= len(value) {
		_, size := utf8.DecodeLastRuneInString(value)
		return value[len(value)-size:]
	}
	return value[start:]
}

func truncateStringToBytes(value string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(value) <= maxBytes {
		return value
	}
	end := maxBytes
	for end > 0 && !utf8.ValidString(value[:end]) {
		end--
	}
	return value[:end]
}
