package truncation

import (
	"context"
	"testing"

	"mercator-hq/relay/pkg/unified"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", true, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestToolResultRoundTripConsumesOnRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutToolResult(ctx, "tool-1", ToolResult{ToolName: "read_file", Reason: "max_output_length", SizeBytes: 50000}); err != nil {
		t.Fatalf("PutToolResult: %v", err)
	}

	rec, found, err := s.TakeToolResult(ctx, "tool-1")
	if err != nil {
		t.Fatalf("TakeToolResult: %v", err)
	}
	if !found || rec.ToolName != "read_file" {
		t.Fatalf("expected a match, got %+v found=%v", rec, found)
	}

	_, found, err = s.TakeToolResult(ctx, "tool-1")
	if err != nil {
		t.Fatalf("TakeToolResult second call: %v", err)
	}
	if found {
		t.Fatal("expected record to be consumed after first read")
	}
}

func TestDisabledStoreIsNoop(t *testing.T) {
	s, err := Open(":memory:", false, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.PutToolResult(ctx, "tool-1", ToolResult{ToolName: "x"}); err != nil {
		t.Fatalf("PutToolResult: %v", err)
	}
	_, found, err := s.TakeToolResult(ctx, "tool-1")
	if err != nil {
		t.Fatalf("TakeToolResult: %v", err)
	}
	if found {
		t.Fatal("disabled store should never report a match")
	}
}

func TestRewriteInsertsNoticeAndToolPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assistantText := "here is the truncated answer"
	if err := s.PutMessage(ctx, HashText(assistantText), Message{MessageHash: "abc123"}); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}
	if err := s.PutToolResult(ctx, "tool-1", ToolResult{ToolName: "read_file", Reason: "max_output_length", SizeBytes: 1000}); err != nil {
		t.Fatalf("PutToolResult: %v", err)
	}

	messages := []unified.Message{
		{Role: unified.RoleAssistant, Text: assistantText},
		{Role: unified.RoleUser, ToolResults: []unified.ToolResult{{ToolUseID: "tool-1", Content: "partial data"}}},
	}

	rewritten, err := Rewrite(ctx, s, messages)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if len(rewritten) != 3 {
		t.Fatalf("expected synthetic notice message inserted, got %d messages", len(rewritten))
	}
	if rewritten[1].Role != unified.RoleUser || rewritten[1].Text == "" {
		t.Fatalf("expected synthetic notice after assistant message, got %+v", rewritten[1])
	}
	if got := rewritten[2].ToolResults[0].Content; got == "partial data" {
		t.Fatal("expected tool_result content to be prefixed with a truncation notice")
	}
}
