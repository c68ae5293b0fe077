package apikeys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key_id TEXT NOT NULL UNIQUE,
	key_hash TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	rate_limit_rpm INTEGER NOT NULL DEFAULT 0,
	rate_limit_tpm INTEGER NOT NULL DEFAULT 0,
	usage_limit_tokens INTEGER NOT NULL DEFAULT 0,
	usage_limit_requests INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_used_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id);
`

// Store persists Key records in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) a SQLite-backed Store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("apikeys: open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apikeys: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apikeys: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new key and fills in its generated ID and CreatedAt.
func (s *Store) Insert(ctx context.Context, k *Key) error {
	k.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_id, key_hash, user_id, name, is_active,
			rate_limit_rpm, rate_limit_tpm, usage_limit_tokens, usage_limit_requests, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.KeyID, k.KeyHash, k.UserID, k.Name, k.IsActive,
		k.RateLimitRPM, k.RateLimitTPM, k.UsageLimitTokens, k.UsageLimitRequests, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("apikeys: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("apikeys: insert: %w", err)
	}
	k.ID = id
	return nil
}

// GetByKeyID looks up a key by its lookup-index prefix.
func (s *Store) GetByKeyID(ctx context.Context, keyID string) (*Key, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+" WHERE key_id = ?", keyID))
}

// GetByID looks up a key by its numeric primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*Key, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
}

const selectColumns = `SELECT id, key_id, key_hash, user_id, name, is_active,
	rate_limit_rpm, rate_limit_tpm, usage_limit_tokens, usage_limit_requests, created_at, last_used_at
	FROM api_keys`

func (s *Store) scanOne(row *sql.Row) (*Key, error) {
	var k Key
	var isActive int
	var lastUsed sql.NullTime
	err := row.Scan(&k.ID, &k.KeyID, &k.KeyHash, &k.UserID, &k.Name, &isActive,
		&k.RateLimitRPM, &k.RateLimitTPM, &k.UsageLimitTokens, &k.UsageLimitRequests, &k.CreatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apikeys: scan: %w", err)
	}
	k.IsActive = isActive != 0
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	return &k, nil
}

// TouchLastUsed stamps last_used_at to now for the given key.
func (s *Store) TouchLastUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("apikeys: touch last used: %w", err)
	}
	return nil
}

// SetActive flips is_active and reports whether a row was affected.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return false, fmt.Errorf("apikeys: set active: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete permanently removes a key and reports whether a row was affected.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("apikeys: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateLimits updates the usage limits of a key and reports whether a row
// was affected.
func (s *Store) UpdateLimits(ctx context.Context, id int64, tokens, requests int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET usage_limit_tokens = ?, usage_limit_requests = ? WHERE id = ?`,
		tokens, requests, id)
	if err != nil {
		return false, fmt.Errorf("apikeys: update limits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns every key, optionally filtered by user id (pass 0 for all),
// newest first.
func (s *Store) List(ctx context.Context, userID int64) ([]*Key, error) {
	query := selectColumns
	var args []any
	if userID != 0 {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("apikeys: list: %w", err)
	}
	defer rows.Close()

	var keys []*Key
	for rows.Next() {
		var k Key
		var isActive int
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.KeyID, &k.KeyHash, &k.UserID, &k.Name, &isActive,
			&k.RateLimitRPM, &k.RateLimitTPM, &k.UsageLimitTokens, &k.UsageLimitRequests, &k.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("apikeys: scan list row: %w", err)
		}
		k.IsActive = isActive != 0
		if lastUsed.Valid {
			t := lastUsed.Time
			k.LastUsedAt = &t
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}
