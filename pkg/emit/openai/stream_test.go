package openai

import (
	"bytes"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/emit"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/thinking"
)

func TestStreamEmitsRoleOnFirstChunk(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "chatcmpl-1", "claude-sonnet-4.5", 1700000000, thinking.ModePass)

	if err := s.Feed(eventstream.Event{Type: eventstream.EventContent, Content: "hello"}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"role":"assistant"`) {
		t.Fatalf("expected role on first chunk, got %s", out)
	}
	if !strings.Contains(out, `"content":"hello"`) {
		t.Fatalf("expected content delta, got %s", out)
	}
}

func TestStreamFinishEmitsToolCallsFinishReason(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "chatcmpl-1", "claude-sonnet-4.5", 1700000000, thinking.ModePass)

	if err := s.Feed(eventstream.Event{Type: eventstream.EventToolCall, ToolCall: &eventstream.ToolCall{ID: "t1", Name: "search", Arguments: "{}"}}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := s.Finish(emit.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"finish_reason":"tool_calls"`) {
		t.Fatalf("expected tool_calls finish reason, got %s", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "data: [DONE]") {
		t.Fatalf("expected terminal [DONE] frame, got %s", out)
	}
}

func TestStreamAsReasoningContentChannel(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "chatcmpl-1", "claude-sonnet-4.5", 1700000000, thinking.ModeAsReasoningContent)

	if err := s.Feed(eventstream.Event{Type: eventstream.EventContent, Content: "<thinking>pondering</thinking>answer"}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"reasoning_content":"pondering"`) {
		t.Fatalf("expected reasoning_content delta, got %s", out)
	}
	if !strings.Contains(out, `"content":"answer"`) {
		t.Fatalf("expected regular content delta, got %s", out)
	}
}
