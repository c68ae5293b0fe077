package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// keyIDLength is "sk-" plus the first 12 characters of the random part,
// matching the reference implementation's 15-character lookup index.
const keyIDLength = 15

const bcryptCost = 12

// UsageSource reports aggregated usage for a key, so the manager can
// enforce usage_limit_tokens/usage_limit_requests without owning the usage
// ledger itself. The usage package's Store implements this.
type UsageSource interface {
	StatsForKey(ctx context.Context, apiKeyID int64) (UsageStats, error)
	ModelUsageForKey(ctx context.Context, apiKeyID int64) ([]ModelUsage, error)
}

// Manager issues, validates, and administers client API keys.
type Manager struct {
	store *Store
	usage UsageSource
	log   *slog.Logger
}

// New constructs a Manager.
func New(store *Store, usage UsageSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, usage: usage, log: logger.With("component", "apikeys.manager")}
}

// CreateKey generates a new "sk-" prefixed key, hashes it at bcrypt cost
// 12, and persists the record. It returns the plaintext key exactly once —
// it is never recoverable again afterward.
func (m *Manager) CreateKey(ctx context.Context, userID int64, name string, rateLimitRPM, rateLimitTPM int, usageLimitTokens, usageLimitRequests int64) (plaintext string, key *Key, err error) {
	randomPart, err := randomURLSafe(32)
	if err != nil {
		return "", nil, fmt.Errorf("apikeys: generate key: %w", err)
	}
	plaintext = "sk-" + randomPart
	keyID := plaintext
	if len(keyID) > keyIDLength {
		keyID = keyID[:keyIDLength]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("apikeys: hash key: %w", err)
	}

	key = &Key{
		KeyID:              keyID,
		KeyHash:            string(hash),
		UserID:             userID,
		Name:               name,
		IsActive:           true,
		RateLimitRPM:       rateLimitRPM,
		RateLimitTPM:       rateLimitTPM,
		UsageLimitTokens:   usageLimitTokens,
		UsageLimitRequests: usageLimitRequests,
	}
	if err := m.store.Insert(ctx, key); err != nil {
		return "", nil, err
	}
	m.log.Info("api key created", "key_id", key.KeyID, "user_id", userID)
	return plaintext, key, nil
}

// ValidateKey checks a client-supplied plaintext key, stamping
// last_used_at on success. It returns (nil, nil) for any invalid, unknown,
// wrong-hash, or deactivated key — validation failure is not an error
// condition, it's a normal "no" answer.
func (m *Manager) ValidateKey(ctx context.Context, plaintext string) (*Key, error) {
	if !strings.HasPrefix(plaintext, "sk-") {
		return nil, nil
	}
	keyID := plaintext
	if len(keyID) > keyIDLength {
		keyID = keyID[:keyIDLength]
	}

	key, err := m.store.GetByKeyID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) != nil {
		return nil, nil
	}
	if !key.IsActive {
		return nil, nil
	}

	if err := m.store.TouchLastUsed(ctx, key.ID); err != nil {
		m.log.Warn("failed to stamp last_used_at", "key_id", key.KeyID, "error", err)
	} else {
		now := time.Now().UTC()
		key.LastUsedAt = &now
	}
	return key, nil
}

// DeactivateKey disables a key without deleting its usage history.
func (m *Manager) DeactivateKey(ctx context.Context, id int64) (bool, error) {
	return m.store.SetActive(ctx, id, false)
}

// DeleteKey permanently removes a key.
func (m *Manager) DeleteKey(ctx context.Context, id int64) (bool, error) {
	return m.store.Delete(ctx, id)
}

// UpdateLimits changes the usage limits attached to a key. Passing 0
// removes the corresponding limit.
func (m *Manager) UpdateLimits(ctx context.Context, id int64, usageLimitTokens, usageLimitRequests int64) (bool, error) {
	return m.store.UpdateLimits(ctx, id, usageLimitTokens, usageLimitRequests)
}

// CheckUsageLimits reports whether a key is still within its configured
// token/request limits. A key with no limits set is always within limits.
func (m *Manager) CheckUsageLimits(ctx context.Context, id int64) (ok bool, reason string, err error) {
	key, err := m.store.GetByID(ctx, id)
	if err != nil {
		return false, "", err
	}
	if key == nil {
		return false, "API key not found", nil
	}
	if key.UsageLimitTokens == 0 && key.UsageLimitRequests == 0 {
		return true, "", nil
	}

	stats, err := m.usage.StatsForKey(ctx, id)
	if err != nil {
		return false, "", err
	}

	if key.UsageLimitTokens > 0 && stats.TotalTokens >= key.UsageLimitTokens {
		return false, fmt.Sprintf("token limit exceeded (%d/%d)", stats.TotalTokens, key.UsageLimitTokens), nil
	}
	if key.UsageLimitRequests > 0 && stats.TotalRequests >= key.UsageLimitRequests {
		return false, fmt.Sprintf("request limit exceeded (%d/%d)", stats.TotalRequests, key.UsageLimitRequests), nil
	}
	return true, "", nil
}

// KeyWithUsage bundles a Key with its aggregated usage, for listing.
type KeyWithUsage struct {
	Key        *Key
	Stats      UsageStats
	ModelUsage []ModelUsage
}

// ListKeys returns every key (optionally filtered by user) with its usage
// statistics attached.
func (m *Manager) ListKeys(ctx context.Context, userID int64) ([]KeyWithUsage, error) {
	keys, err := m.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]KeyWithUsage, 0, len(keys))
	for _, k := range keys {
		stats, err := m.usage.StatsForKey(ctx, k.ID)
		if err != nil {
			return nil, err
		}
		modelUsage, err := m.usage.ModelUsageForKey(ctx, k.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyWithUsage{Key: k, Stats: stats, ModelUsage: modelUsage})
	}
	return out, nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
