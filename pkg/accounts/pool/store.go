package pool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/relay/pkg/accounts/auth"
)

const schema = `
CREATE TABLE IF NOT EXISTS kiro_accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	auth_type TEXT NOT NULL,
	region TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	last_success_at DATETIME,
	created_at DATETIME NOT NULL,
	profile_arn TEXT,
	expires_at DATETIME,
	refresh_token_encrypted TEXT,
	access_token_encrypted TEXT,
	client_id_encrypted TEXT,
	client_secret_encrypted TEXT
);
`

const selectColumns = `SELECT id, name, auth_type, region, priority, is_active, error_count,
	last_error, last_success_at, created_at, profile_arn, expires_at,
	refresh_token_encrypted, access_token_encrypted, client_id_encrypted, client_secret_encrypted
	FROM kiro_accounts`

// Store persists Account rows in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) a SQLite-backed Store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("pool: open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pool: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pool: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new account, filling in its generated ID and CreatedAt.
func (s *Store) Insert(ctx context.Context, a *Account) error {
	a.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kiro_accounts (name, auth_type, region, priority, is_active, error_count,
			last_error, last_success_at, created_at, profile_arn, expires_at,
			refresh_token_encrypted, access_token_encrypted, client_id_encrypted, client_secret_encrypted)
		VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, string(a.AuthType), a.Region, a.Priority, a.IsActive, a.CreatedAt,
		a.ProfileARN, a.ExpiresAt, a.RefreshTokenEncrypted, a.AccessTokenEncrypted,
		a.ClientIDEncrypted, a.ClientSecretEncrypted)
	if err != nil {
		return fmt.Errorf("pool: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("pool: insert: %w", err)
	}
	a.ID = id
	return nil
}

func scanAccount(scan func(dest ...any) error) (*Account, error) {
	var a Account
	var authType string
	var isActive int
	var lastError sql.NullString
	var lastSuccessAt, expiresAt sql.NullTime
	err := scan(&a.ID, &a.Name, &authType, &a.Region, &a.Priority, &isActive, &a.ErrorCount,
		&lastError, &lastSuccessAt, &a.CreatedAt, &a.ProfileARN, &expiresAt,
		&a.RefreshTokenEncrypted, &a.AccessTokenEncrypted, &a.ClientIDEncrypted, &a.ClientSecretEncrypted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pool: scan: %w", err)
	}
	a.AuthType = auth.Type(authType)
	a.IsActive = isActive != 0
	if lastError.Valid {
		a.LastError = lastError.String
	}
	if lastSuccessAt.Valid {
		t := lastSuccessAt.Time
		a.LastSuccessAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	return &a, nil
}

// GetByID looks up an account by its numeric primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	return scanAccount(row.Scan)
}

// ListHealthy returns active accounts below the error threshold, ordered
// by priority descending then id ascending — the order the selection
// round-robin walks.
func (s *Store) ListHealthy(ctx context.Context, errorThreshold int) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" WHERE is_active = 1 AND error_count < ? ORDER BY priority DESC, id ASC", errorThreshold)
	if err != nil {
		return nil, fmt.Errorf("pool: list healthy: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListAll returns every account, healthy or not, in the same order.
func (s *Store) ListAll(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY priority DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("pool: list all: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func scanAccounts(rows *sql.Rows) ([]*Account, error) {
	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IncrementError bumps error_count by one and records the (truncated)
// message, deactivating the account if the new count reaches threshold.
// It returns the new error count and whether the account was deactivated.
func (s *Store) IncrementError(ctx context.Context, id int64, message string, threshold int) (newCount int, deactivated bool, err error) {
	if len(message) > 500 {
		message = message[:500]
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("pool: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, "SELECT error_count FROM kiro_accounts WHERE id = ?", id).Scan(&current); err != nil {
		return 0, false, fmt.Errorf("pool: read error_count: %w", err)
	}
	newCount = current + 1
	deactivated = newCount >= threshold

	if deactivated {
		_, err = tx.ExecContext(ctx, `UPDATE kiro_accounts SET error_count = ?, last_error = ?, is_active = 0 WHERE id = ?`,
			newCount, message, id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE kiro_accounts SET error_count = ?, last_error = ? WHERE id = ?`,
			newCount, message, id)
	}
	if err != nil {
		return 0, false, fmt.Errorf("pool: update error tracking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("pool: commit: %w", err)
	}
	return newCount, deactivated, nil
}

// ResetHealth clears error tracking and stamps last_success_at, called
// after a successful request.
func (s *Store) ResetHealth(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kiro_accounts SET error_count = 0, last_error = NULL, last_success_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("pool: reset health: %w", err)
	}
	return nil
}

// UpdateTokens writes back refreshed, re-encrypted credential columns.
func (s *Store) UpdateTokens(ctx context.Context, id int64, accessTokenEncrypted, refreshTokenEncrypted string, expiresAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kiro_accounts SET access_token_encrypted = ?, refresh_token_encrypted = ?, expires_at = ? WHERE id = ?`,
		accessTokenEncrypted, refreshTokenEncrypted, expiresAt, id)
	if err != nil {
		return fmt.Errorf("pool: update tokens: %w", err)
	}
	return nil
}

// Delete permanently removes an account and reports whether a row was
// affected.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kiro_accounts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("pool: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
