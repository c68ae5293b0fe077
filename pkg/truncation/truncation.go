// Package truncation remembers which tool results and assistant messages
// were cut short by an upstream length limit, so the next client request
// referencing them can be rewritten with a synthetic notice instead of
// silently re-sending truncated content. Entries are consumed on read: a
// match is rewritten once, then forgotten.
package truncation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS truncated_tool_results (
	tool_use_id TEXT PRIMARY KEY,
	tool_name TEXT NOT NULL,
	reason TEXT NOT NULL,
	size_bytes INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS truncated_messages (
	content_hash TEXT PRIMARY KEY,
	message_hash TEXT NOT NULL
);
`

// ToolResult is a recorded truncation of a tool_result's content, keyed by
// the tool_use_id it belongs to.
type ToolResult struct {
	ToolName  string
	Reason    string
	SizeBytes int64
}

// Message is a recorded truncation of an assistant message's text, keyed by
// a hash of that text so a later request carrying the same (truncated)
// history can be recognized even without a stable message id.
type Message struct {
	MessageHash string
}

// Store persists truncation records across the two tables. A nil or
// disabled Store behaves as an always-empty store — callers do not need to
// special-case the feature flag at every call site.
type Store struct {
	db      *sql.DB
	enabled bool
	log     *slog.Logger
}

// Open opens (creating if necessary) a SQLite-backed Store at path. When
// enabled is false, the returned Store accepts writes and reads as no-ops,
// so TRUNCATION_RECOVERY=false disables the mechanism without branching
// logic upstream.
func Open(path string, enabled bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !enabled {
		return &Store{enabled: false, log: logger.With("component", "truncation.store")}, nil
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("truncation: open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("truncation: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("truncation: create schema: %w", err)
	}
	return &Store{db: db, enabled: true, log: logger.With("component", "truncation.store")}, nil
}

// Close releases the underlying database handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutToolResult records that a tool_result for toolUseID was truncated.
func (s *Store) PutToolResult(ctx context.Context, toolUseID string, rec ToolResult) error {
	if !s.enabled {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO truncated_tool_results (tool_use_id, tool_name, reason, size_bytes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tool_use_id) DO UPDATE SET tool_name=excluded.tool_name, reason=excluded.reason, size_bytes=excluded.size_bytes`,
		toolUseID, rec.ToolName, rec.Reason, rec.SizeBytes)
	if err != nil {
		return fmt.Errorf("truncation: put tool result: %w", err)
	}
	return nil
}

// PutMessage records that the assistant message hashing to contentHash was
// truncated.
func (s *Store) PutMessage(ctx context.Context, contentHash string, rec Message) error {
	if !s.enabled {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO truncated_messages (content_hash, message_hash)
		VALUES (?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET message_hash=excluded.message_hash`,
		contentHash, rec.MessageHash)
	if err != nil {
		return fmt.Errorf("truncation: put message: %w", err)
	}
	return nil
}

// TakeToolResult looks up and deletes a tool_result truncation record, if
// one exists. The second return value reports whether a match was found.
func (s *Store) TakeToolResult(ctx context.Context, toolUseID string) (ToolResult, bool, error) {
	if !s.enabled {
		return ToolResult{}, false, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ToolResult{}, false, fmt.Errorf("truncation: take tool result: %w", err)
	}
	defer tx.Rollback()

	var rec ToolResult
	err = tx.QueryRowContext(ctx, `SELECT tool_name, reason, size_bytes FROM truncated_tool_results WHERE tool_use_id = ?`, toolUseID).
		Scan(&rec.ToolName, &rec.Reason, &rec.SizeBytes)
	if err == sql.ErrNoRows {
		return ToolResult{}, false, nil
	}
	if err != nil {
		return ToolResult{}, false, fmt.Errorf("truncation: take tool result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM truncated_tool_results WHERE tool_use_id = ?`, toolUseID); err != nil {
		return ToolResult{}, false, fmt.Errorf("truncation: delete tool result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ToolResult{}, false, fmt.Errorf("truncation: commit take tool result: %w", err)
	}
	return rec, true, nil
}

// TakeMessage looks up and deletes a message truncation record keyed by
// contentHash, if one exists.
func (s *Store) TakeMessage(ctx context.Context, contentHash string) (Message, bool, error) {
	if !s.enabled {
		return Message{}, false, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, false, fmt.Errorf("truncation: take message: %w", err)
	}
	defer tx.Rollback()

	var rec Message
	err = tx.QueryRowContext(ctx, `SELECT message_hash FROM truncated_messages WHERE content_hash = ?`, contentHash).Scan(&rec.MessageHash)
	if err == sql.ErrNoRows {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("truncation: take message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM truncated_messages WHERE content_hash = ?`, contentHash); err != nil {
		return Message{}, false, fmt.Errorf("truncation: delete message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, false, fmt.Errorf("truncation: commit take message: %w", err)
	}
	return rec, true, nil
}
