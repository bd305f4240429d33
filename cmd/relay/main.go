// Command relay replays recorded provider streams through the canonical
// event adapter, repairs tool calls, and runs the overflow controller over
// recorded attempts.
//
// Usage:
//
//	relay replay session.jsonl
//	relay repair --tool read --args "{path: 'a.go',}"
//	relay run attempt1.jsonl attempt2.jsonl
//
// Configuration is read from .env, an optional YAML/JSON5 file given by
// --config or RELAY_CONFIG, and RELAY_* / ANTHROPIC_* / VERTEX_* variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}
