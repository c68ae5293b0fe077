// Package usage records per-request token usage and serves the aggregated
// queries pkg/apikeys needs to enforce usage limits. Records accumulate in
// memory and flush to SQLite in batches, matching the evidence recorder's
// async-buffer-then-flush design in the teacher repo.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/relay/pkg/apikeys"
)

// Record is one completed request's usage, appended to the ledger.
type Record struct {
	APIKeyID     int64
	AccountID    int64
	Model        string
	Endpoint     string
	InputTokens  int64
	OutputTokens int64
	StatusCode   int
	DurationMS   int64
	Timestamp    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_key_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	model TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_records_api_key_id ON usage_records(api_key_id);
CREATE INDEX IF NOT EXISTS idx_usage_records_timestamp ON usage_records(timestamp);
`

// Store buffers Records in memory and flushes them to SQLite in batches. It
// implements pkg/apikeys.UsageSource by reading straight through to the
// database (aggregation at read time, not maintained counters).
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	pending   []Record
	batchSize int
	log       *slog.Logger
}

// Config controls batching behavior.
type Config struct {
	// BatchSize is how many pending records accumulate before an automatic
	// flush. Default: 100.
	BatchSize int
}

// Open opens (creating if necessary) a SQLite-backed Store at path.
func Open(path string, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: create schema: %w", err)
	}
	return &Store{db: db, batchSize: cfg.BatchSize, log: logger.With("component", "usage.store")}, nil
}

// Close flushes any pending records and releases the database handle.
func (s *Store) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		s.log.Warn("flush on close failed", "error", err)
	}
	return s.db.Close()
}

// Append enqueues a usage record, flushing the batch immediately once
// BatchSize is reached.
func (s *Store) Append(ctx context.Context, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.pending = append(s.pending, r)
	shouldFlush := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes all pending records to storage. Records that fail to write
// are put back at the front of the pending queue so a later flush retries
// them, rather than being dropped.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.requeue(batch)
		return fmt.Errorf("usage: begin flush: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (api_key_id, account_id, model, endpoint, input_tokens, output_tokens, status_code, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.requeue(batch)
		return fmt.Errorf("usage: prepare flush: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, r.APIKeyID, r.AccountID, r.Model, r.Endpoint,
			r.InputTokens, r.OutputTokens, r.StatusCode, r.DurationMS, r.Timestamp); err != nil {
			tx.Rollback()
			s.requeue(batch)
			return fmt.Errorf("usage: flush insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.requeue(batch)
		return fmt.Errorf("usage: commit flush: %w", err)
	}
	s.log.Debug("flushed usage records", "count", len(batch))
	return nil
}

func (s *Store) requeue(batch []Record) {
	s.mu.Lock()
	s.pending = append(batch, s.pending...)
	s.mu.Unlock()
}

// StatsForKey satisfies apikeys.UsageSource.
func (s *Store) StatsForKey(ctx context.Context, apiKeyID int64) (apikeys.UsageStats, error) {
	var stats apikeys.UsageStats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(input_tokens + output_tokens), 0),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM usage_records WHERE api_key_id = ?`, apiKeyID)
	if err := row.Scan(&stats.TotalRequests, &stats.TotalTokens, &stats.InputTokens, &stats.OutputTokens); err != nil {
		return stats, fmt.Errorf("usage: stats for key: %w", err)
	}
	return stats, nil
}

// ModelUsageForKey satisfies apikeys.UsageSource.
func (s *Store) ModelUsageForKey(ctx context.Context, apiKeyID int64) ([]apikeys.ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM usage_records WHERE api_key_id = ? GROUP BY model ORDER BY COUNT(*) DESC`, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("usage: model usage for key: %w", err)
	}
	defer rows.Close()

	var out []apikeys.ModelUsage
	for rows.Next() {
		var m apikeys.ModelUsage
		if err := rows.Scan(&m.Model, &m.Requests, &m.InputTokens, &m.OutputTokens, &m.TotalTokens); err != nil {
			return nil, fmt.Errorf("usage: scan model usage: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Recent returns the most recent N records across all keys, newest first —
// used by the admin-facing usage inspection surface.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT api_key_id, account_id, model, endpoint, input_tokens, output_tokens, status_code, duration_ms, timestamp
		FROM usage_records ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("usage: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.APIKeyID, &r.AccountID, &r.Model, &r.Endpoint,
			&r.InputTokens, &r.OutputTokens, &r.StatusCode, &r.DurationMS, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("usage: scan recent: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
