// Package history persists the messages of a session. The stream adapter
// only depends on Appender; compaction rewrites whole sessions through
// Rewriter.
package history

import (
	"context"
	"sync"

	"github.com/victorarias/agentic-relay/agentic/message"
)

// Appender is the append-only session contract used while streaming.
type Appender interface {
	Append(ctx context.Context, msg message.AgentMessage) error
}

// Store persists conversational messages.
type Store interface {
	Appender
	Load(ctx context.Context) ([]message.AgentMessage, error)
}

// Rewriter can replace stored messages (used after compaction and
// tool-result truncation).
type Rewriter interface {
	Store
	Replace(ctx context.Context, messages []message.AgentMessage) error
}

// MemoryStore stores messages in memory.
type MemoryStore struct {
	mu       sync.Mutex
	messages []message.AgentMessage
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(seed ...message.AgentMessage) *MemoryStore {
	m := &MemoryStore{}
	for _, msg := range seed {
		m.messages = append(m.messages, msg.Clone())
	}
	return m
}

// Append stores a message.
func (m *MemoryStore) Append(ctx context.Context, msg message.AgentMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg.Clone())
	return nil
}

// Load returns stored messages.
func (m *MemoryStore) Load(ctx context.Context) ([]message.AgentMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.AgentMessage, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.Clone()
	}
	return out, nil
}

// Replace overwrites stored messages.
func (m *MemoryStore) Replace(ctx context.Context, messages []message.AgentMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = make([]message.AgentMessage, len(messages))
	for i, msg := range messages {
		m.messages[i] = msg.Clone()
	}
	return nil
}
