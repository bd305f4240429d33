package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victorarias/agentic-relay/agentic/message"
	_ "modernc.org/sqlite" // pure-Go driver registered as "sqlite"
)

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file; empty means an in-memory database.
	Path      string
	SessionID string
	Logger    *slog.Logger
}

// SQLiteStore persists sessions in a SQLite database, one row per message.
// Several sessions can share one database file.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
	logger    *slog.Logger
}

// OpenSQLite opens (and migrates) a SQLite-backed session store.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = ":memory:"
	}
	id := strings.TrimSpace(cfg.SessionID)
	if id == "" {
		id = defaultSessionID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// An in-memory database exists per connection; pin to one.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, sessionID: id, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("session store opened", "path", path, "session_id", id)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_messages (
			session_id TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("history: create session_messages: %w", err)
	}
	return nil
}

// SessionID returns the session this store reads and writes.
func (s *SQLiteStore) SessionID() string {
	return s.sessionID
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores a message.
func (s *SQLiteStore) Append(ctx context.Context, msg message.AgentMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history: encode message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, seq, role, payload)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM session_messages WHERE session_id = ?), ?, ?)
	`, s.sessionID, s.sessionID, msg.Role, string(payload))
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Load returns the session's messages in append order.
func (s *SQLiteStore) Load(ctx context.Context) ([]message.AgentMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM session_messages WHERE session_id = ? ORDER BY seq`, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	defer rows.Close()

	var out []message.AgentMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		var msg message.AgentMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("history: decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Replace overwrites the session's messages in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, messages []message.AgentMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Debug("session rollback failed", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, s.sessionID); err != nil {
		return fmt.Errorf("history: clear session: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_messages (session_id, seq, role, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()
	for i, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("history: encode message: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.sessionID, i+1, msg.Role, string(payload)); err != nil {
			return fmt.Errorf("history: insert: %w", err)
		}
	}
	return tx.Commit()
}
