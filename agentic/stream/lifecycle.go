package stream

import "fmt"

// Lifecycle counts provider-side compaction evidence observed during one
// attempt.
type Lifecycle struct {
	CompactBoundaries     int `json:"compact_boundaries"`
	CompactingTransitions int `json:"compacting_transitions"`
	IdleTransitions       int `json:"idle_transitions"`
}

// HasCompactionEvidence reports whether the provider signalled any
// compaction activity.
func (l Lifecycle) HasCompactionEvidence() bool {
	return l.CompactBoundaries > 0 || l.CompactingTransitions > 0 || l.IdleTransitions > 0
}

// String renders the lifecycle for log lines.
func (l Lifecycle) String() string {
	return fmt.Sprintf("boundaries=%d compacting=%d idle=%d", l.CompactBoundaries, l.CompactingTransitions, l.IdleTransitions)
}
