package usage

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", Config{BatchSize: 2}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendFlushesAtBatchSize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Record{APIKeyID: 1, Model: "claude-sonnet-4.5", Endpoint: "/v1/chat/completions", InputTokens: 10, OutputTokens: 5}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	if pending != 1 {
		t.Fatalf("expected 1 pending record before batch threshold, got %d", pending)
	}

	if err := s.Append(ctx, Record{APIKeyID: 1, Model: "claude-sonnet-4.5", Endpoint: "/v1/chat/completions", InputTokens: 20, OutputTokens: 8}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.mu.Lock()
	pending = len(s.pending)
	s.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected flush at batch size, got %d still pending", pending)
	}

	stats, err := s.StatsForKey(ctx, 1)
	if err != nil {
		t.Fatalf("StatsForKey: %v", err)
	}
	if stats.TotalRequests != 2 || stats.TotalTokens != 43 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestExplicitFlush(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Record{APIKeyID: 2, Model: "claude-opus-4.5", Endpoint: "/v1/messages", InputTokens: 100, OutputTokens: 50}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	usage, err := s.ModelUsageForKey(ctx, 2)
	if err != nil {
		t.Fatalf("ModelUsageForKey: %v", err)
	}
	if len(usage) != 1 || usage[0].Model != "claude-opus-4.5" || usage[0].Requests != 1 {
		t.Fatalf("unexpected model usage: %+v", usage)
	}
}

func TestRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, Record{APIKeyID: 1, Model: "claude-haiku-4.5", Endpoint: "/v1/models", StatusCode: 200}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	records, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
