// Package apikeys issues and validates client-facing API keys, and tracks
// the usage limits attached to them. Keys are bcrypt-hashed at rest; only
// a short plaintext-derived index is stored unhashed so lookups don't
// require scanning every row.
package apikeys

import "time"

// Key is a client API key record. Usage counters are not stored on the
// record itself — they are computed on demand from the usage package's
// rows, matching the reference implementation's aggregation-at-read-time
// design.
type Key struct {
	ID                  int64
	KeyID               string // sk- + first 12 plaintext chars, used as the lookup index
	KeyHash             string // bcrypt hash of the full plaintext key
	UserID              int64
	Name                string
	IsActive            bool
	RateLimitRPM        int // 0 = unset
	RateLimitTPM        int // 0 = unset
	UsageLimitTokens    int64 // 0 = unset
	UsageLimitRequests  int64 // 0 = unset
	CreatedAt           time.Time
	LastUsedAt          *time.Time
}

// UsageStats aggregates a key's recorded usage.
type UsageStats struct {
	TotalRequests int64
	TotalTokens   int64
	InputTokens   int64
	OutputTokens  int64
}

// ModelUsage is per-model usage for a key.
type ModelUsage struct {
	Model        string
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}
