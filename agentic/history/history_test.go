package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/victorarias/agentic-relay/agentic/message"
)

func exercise(t *testing.T, store Rewriter) {
	t.Helper()
	ctx := context.Background()
	if err := store.Append(ctx, message.AgentMessage{Role: message.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.Append(ctx, message.AgentMessage{
		Role:   message.RoleAssistant,
		Blocks: []message.Block{{Type: message.BlockText, Text: "hello"}},
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	msgs, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Text() != "hello" {
		t.Fatalf("unexpected messages: %#v", msgs)
	}

	if err := store.Replace(ctx, []message.AgentMessage{{Role: message.RoleSystem, Content: "summary"}}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	msgs, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != message.RoleSystem {
		t.Fatalf("unexpected messages after replace: %#v", msgs)
	}

	if err := store.Append(ctx, message.AgentMessage{Role: message.RoleUser, Content: "again"}); err != nil {
		t.Fatalf("append after replace failed: %v", err)
	}
	msgs, _ = store.Load(ctx)
	if len(msgs) != 2 || msgs[1].Content != "again" {
		t.Fatalf("unexpected messages after second append: %#v", msgs)
	}
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStore()
	msg := message.AgentMessage{Role: message.RoleAssistant, Blocks: []message.Block{{Type: message.BlockText, Text: "a"}}}
	_ = store.Append(context.Background(), msg)
	msg.Blocks[0].Text = "mutated"

	msgs, _ := store.Load(context.Background())
	if msgs[0].Blocks[0].Text != "a" {
		t.Fatalf("store aliased caller slice: %q", msgs[0].Blocks[0].Text)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "s-1")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exercise(t, store)
	if filepath.Base(store.Path()) != "s-1.json" {
		t.Fatalf("unexpected path %q", store.Path())
	}
}

func TestFileStoreRejectsInvalidSessionID(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), "../escape"); err == nil {
		t.Fatalf("expected invalid session id error")
	}
}

func TestFileStoreBreaksStaleLock(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "stale")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(store.lockPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(store.lockPath, []byte("pid=1\n"), 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	old := time.Now().Add(-2 * staleLockAge)
	if err := os.Chtimes(store.lockPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.Append(ctx, message.AgentMessage{Role: message.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("append with stale lock: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), SQLiteConfig{SessionID: "sql"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	exercise(t, store)
}

func TestSQLiteStoreSeparatesSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()
	a, err := OpenSQLite(ctx, SQLiteConfig{Path: path, SessionID: "a"})
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, err := OpenSQLite(ctx, SQLiteConfig{Path: path, SessionID: "b"})
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	_ = a.Append(ctx, message.AgentMessage{Role: message.RoleUser, Content: "for a"})
	_ = b.Append(ctx, message.AgentMessage{Role: message.RoleUser, Content: "for b"})
	_ = b.Append(ctx, message.AgentMessage{Role: message.RoleUser, Content: "for b again"})

	msgsA, _ := a.Load(ctx)
	msgsB, _ := b.Load(ctx)
	if len(msgsA) != 1 || len(msgsB) != 2 {
		t.Fatalf("sessions leaked: a=%d b=%d", len(msgsA), len(msgsB))
	}
}
