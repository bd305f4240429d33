package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/victorarias/agentic-relay/agentic/message"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

const (
	defaultSessionID = "default"
	fileVersion      = 1
	lockRetryDelay   = 20 * time.Millisecond
	staleLockAge     = 2 * time.Minute
)

type filePayload struct {
	Version  int                    `json:"version"`
	Messages []message.AgentMessage `json:"messages"`
}

// FileStore persists a session as a JSON document under
// <dir>/.relay/sessions/<id>.json, guarded by a lock file so separate
// processes replaying the same session do not interleave writes.
type FileStore struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

// NewFileStore creates a file-backed session store.
func NewFileStore(dir, sessionID string) (*FileStore, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, fmt.Errorf("history: directory is required")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		id = defaultSessionID
	}
	if !sessionIDPattern.MatchString(id) {
		return nil, fmt.Errorf("history: invalid session id %q", sessionID)
	}
	sessions := filepath.Join(root, ".relay", "sessions")
	return &FileStore{
		path:     filepath.Join(sessions, id+".json"),
		lockPath: filepath.Join(sessions, id+".lock"),
	}, nil
}

// Path returns the underlying JSON file path.
func (s *FileStore) Path() string {
	return s.path
}

// Append stores a message.
func (s *FileStore) Append(ctx context.Context, msg message.AgentMessage) error {
	return s.withLock(ctx, func() error {
		messages, err := s.loadLocked()
		if err != nil {
			return err
		}
		return s.saveLocked(append(messages, msg))
	})
}

// Load reads all stored messages.
func (s *FileStore) Load(ctx context.Context) ([]message.AgentMessage, error) {
	var out []message.AgentMessage
	err := s.withLock(ctx, func() error {
		var err error
		out, err = s.loadLocked()
		return err
	})
	return out, err
}

// Replace overwrites stored messages.
func (s *FileStore) Replace(ctx context.Context, messages []message.AgentMessage) error {
	return s.withLock(ctx, func() error {
		return s.saveLocked(messages)
	})
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (s *FileStore) loadLocked() ([]message.AgentMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", s.path, err)
	}
	if payload.Version != fileVersion {
		return nil, fmt.Errorf("history: %s has unsupported version %d", s.path, payload.Version)
	}
	return payload.Messages, nil
}

func (s *FileStore) saveLocked(messages []message.AgentMessage) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(filePayload{Version: fileVersion, Messages: messages}, "", "  ")
	if err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err == nil {
		return nil
	}
	// Windows does not always allow rename-over-existing.
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) acquireLock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, err
	}
	for {
		lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(lock, "pid=%d\n", os.Getpid())
			_ = lock.Close()
			return func() { _ = os.Remove(s.lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if info, statErr := os.Stat(s.lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(s.lockPath)
			continue
		}
		timer := time.NewTimer(lockRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
