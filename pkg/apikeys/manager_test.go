package apikeys

import (
	"context"
	"strings"
	"testing"
)

type fakeUsage struct {
	stats map[int64]UsageStats
}

func (f *fakeUsage) StatsForKey(ctx context.Context, id int64) (UsageStats, error) {
	return f.stats[id], nil
}

func (f *fakeUsage) ModelUsageForKey(ctx context.Context, id int64) ([]ModelUsage, error) {
	return nil, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeUsage) {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	usage := &fakeUsage{stats: map[int64]UsageStats{}}
	return New(store, usage, nil), usage
}

func TestCreateAndValidateKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	plaintext, key, err := m.CreateKey(ctx, 1, "test key", 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, "sk-") {
		t.Errorf("expected sk- prefix, got %q", plaintext)
	}
	if len(key.KeyID) != keyIDLength {
		t.Errorf("KeyID length = %d, want %d", len(key.KeyID), keyIDLength)
	}

	validated, err := m.ValidateKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if validated == nil {
		t.Fatal("expected key to validate")
	}
	if validated.LastUsedAt == nil {
		t.Error("expected LastUsedAt to be stamped")
	}
}

func TestValidateKeyRejectsWrongKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.CreateKey(ctx, 1, "test key", 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	validated, err := m.ValidateKey(ctx, "sk-wrong-key-entirely")
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if validated != nil {
		t.Error("expected nil for an unknown key")
	}
}

func TestValidateKeyRejectsDeactivated(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	plaintext, key, _ := m.CreateKey(ctx, 1, "test key", 0, 0, 0, 0)
	if _, err := m.DeactivateKey(ctx, key.ID); err != nil {
		t.Fatalf("DeactivateKey: %v", err)
	}

	validated, err := m.ValidateKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if validated != nil {
		t.Error("expected nil for a deactivated key")
	}
}

func TestCheckUsageLimits(t *testing.T) {
	m, usage := newTestManager(t)
	ctx := context.Background()

	_, key, _ := m.CreateKey(ctx, 1, "limited", 0, 0, 1000, 0)
	usage.stats[key.ID] = UsageStats{TotalTokens: 500}

	ok, _, err := m.CheckUsageLimits(ctx, key.ID)
	if err != nil {
		t.Fatalf("CheckUsageLimits: %v", err)
	}
	if !ok {
		t.Error("expected within limits at 500/1000 tokens")
	}

	usage.stats[key.ID] = UsageStats{TotalTokens: 1500}
	ok, reason, err := m.CheckUsageLimits(ctx, key.ID)
	if err != nil {
		t.Fatalf("CheckUsageLimits: %v", err)
	}
	if ok {
		t.Error("expected over limit at 1500/1000 tokens")
	}
	if reason == "" {
		t.Error("expected a reason string")
	}
}

func TestCheckUsageLimitsUnlimitedByDefault(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, key, _ := m.CreateKey(ctx, 1, "unlimited", 0, 0, 0, 0)
	ok, _, err := m.CheckUsageLimits(ctx, key.ID)
	if err != nil {
		t.Fatalf("CheckUsageLimits: %v", err)
	}
	if !ok {
		t.Error("expected a key with no limits set to always be within limits")
	}
}
