package anthropic

import (
	"bytes"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/emit"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/thinking"
)

func TestStreamEmitsMessageStartThenTextBlock(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "msg_1", "claude-sonnet-4.5", thinking.ModePass)

	if err := s.Feed(eventstream.Event{Type: eventstream.EventContent, Content: "hello"}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "event: message_start") {
		t.Fatalf("expected message_start, got %s", out)
	}
	if !strings.Contains(out, `"type":"text"`) {
		t.Fatalf("expected text content block, got %s", out)
	}
}

func TestThinkingBlockPrecedesTextBlock(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "msg_1", "claude-sonnet-4.5", thinking.ModeAsReasoningContent)

	if err := s.Feed(eventstream.Event{Type: eventstream.EventContent, Content: "<thinking>pondering</thinking>answer"}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	out := buf.String()
	thinkIdx := strings.Index(out, `"type":"thinking"`)
	textIdx := strings.Index(out, `"type":"text"`)
	if thinkIdx < 0 || textIdx < 0 || thinkIdx > textIdx {
		t.Fatalf("expected thinking block before text block, got %s", out)
	}
}

func TestFinishEmitsToolUseStopReason(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, "msg_1", "claude-sonnet-4.5", thinking.ModePass)

	if err := s.Feed(eventstream.Event{Type: eventstream.EventToolCall, ToolCall: &eventstream.ToolCall{ID: "t1", Name: "search", Arguments: "{}"}}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := s.Finish(emit.Usage{CompletionTokens: 5}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"stop_reason":"tool_use"`) {
		t.Fatalf("expected tool_use stop reason, got %s", out)
	}
	if !strings.Contains(out, "event: message_stop") {
		t.Fatalf("expected message_stop, got %s", out)
	}
}
