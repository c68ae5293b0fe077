// Package pool maintains the ordered set of upstream accounts, selects one
// per request by priority-then-round-robin, and tracks each account's
// error-based health, deactivating an account once it misbehaves too
// often. It owns the only live auth.Manager instance per account.
package pool

import (
	"time"

	"mercator-hq/relay/pkg/accounts/auth"
)

// Account is one upstream credential set, persisted with its secret
// columns encrypted at rest.
type Account struct {
	ID       int64
	Name     string
	AuthType auth.Type
	Region   string
	Priority int

	IsActive      bool
	ErrorCount    int
	LastError     string
	LastSuccessAt *time.Time
	CreatedAt     time.Time

	ProfileARN string
	ExpiresAt  *time.Time

	RefreshTokenEncrypted string
	AccessTokenEncrypted  string
	ClientIDEncrypted     string
	ClientSecretEncrypted string
}

// Summary is the metadata exposed by ListAccounts — everything but the
// encrypted credential columns.
type Summary struct {
	ID            int64
	Name          string
	AuthType      auth.Type
	Region        string
	Priority      int
	IsActive      bool
	ErrorCount    int
	LastError     string
	LastSuccessAt *time.Time
	CreatedAt     time.Time
}
