package attempt

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/victorarias/agentic-relay/agentic/overflow"
)

// Source opens the provider message stream for one attempt. The stream is
// newline-delimited JSON, one provider message per line.
type Source interface {
	Open(ctx context.Context, params overflow.AttemptParams) (io.ReadCloser, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, params overflow.AttemptParams) (io.ReadCloser, error)

// Open calls f(ctx, params).
func (f SourceFunc) Open(ctx context.Context, params overflow.AttemptParams) (io.ReadCloser, error) {
	return f(ctx, params)
}

// Files replays recorded streams: attempt N reads file N, and attempts past
// the end reread the last file.
type Files []string

// Open opens the recording for params.Attempt.
func (f Files) Open(_ context.Context, params overflow.AttemptParams) (io.ReadCloser, error) {
	if len(f) == 0 {
		return nil, fmt.Errorf("attempt: no recordings configured")
	}
	i := params.Attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(f) {
		i = len(f) - 1
	}
	file, err := os.Open(f[i])
	if err != nil {
		return nil, fmt.Errorf("attempt: open recording: %w", err)
	}
	return file, nil
}
