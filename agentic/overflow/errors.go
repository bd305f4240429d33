package overflow

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal turn error.
type Kind string

const (
	KindContextOverflow   Kind = "context_overflow"
	KindCompactionFailure Kind = "compaction_failure"
	KindTimeout           Kind = "timeout"
	KindOther             Kind = "other"
)

// Reasons attached to terminal context overflow errors.
const (
	ReasonNoCompactionSignal  = "no_compaction_signal"
	ReasonNoStateDelta        = "no_state_delta"
	ReasonCompactionExhausted = "compaction_exhausted"
	ReasonRecoveryFailed      = "recovery_failed"
	ReasonAttemptsExhausted   = "attempts_exhausted"
)

var (
	ErrContextOverflow   = errors.New("context overflow")
	ErrCompactionFailure = errors.New("compaction failure")
	ErrTimeout           = errors.New("timeout")
	ErrRunnerRequired    = errors.New("overflow: attempt runner is required")
)

// TurnError is the structured error carried by every terminal outcome.
type TurnError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (e *TurnError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the sentinel for e.Kind.
func (e *TurnError) Is(target error) bool {
	switch e.Kind {
	case KindContextOverflow:
		return target == ErrContextOverflow
	case KindCompactionFailure:
		return target == ErrCompactionFailure
	case KindTimeout:
		return target == ErrTimeout
	}
	return false
}
