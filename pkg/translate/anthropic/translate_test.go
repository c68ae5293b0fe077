package anthropic

import (
	"encoding/json"
	"testing"

	"mercator-hq/relay/pkg/unified"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestSystemAsListOfBlocksStripsCacheControl(t *testing.T) {
	system, _ := json.Marshal([]map[string]any{
		{"type": "text", "text": "be concise", "cache_control": map[string]any{"type": "ephemeral"}},
	})
	req := MessagesRequest{System: system, Messages: []RawMessage{{Role: "user", Content: rawString("hi")}}}
	_, systemText, _, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if systemText != "be concise" {
		t.Fatalf("system = %q", systemText)
	}
}

func TestToolUseAndToolResultRoundTrip(t *testing.T) {
	assistantContent, _ := json.Marshal([]RawBlock{
		{Type: "text", Text: "let me check"},
		{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"city":"nyc"}`)},
	})
	userContent, _ := json.Marshal([]RawBlock{
		{Type: "tool_result", ToolUseID: "toolu_1", Content: rawString("72F and sunny")},
	})
	req := MessagesRequest{Messages: []RawMessage{
		{Role: "user", Content: rawString("what's the weather")},
		{Role: "assistant", Content: assistantContent},
		{Role: "user", Content: userContent},
	}}
	msgs, _, _, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != unified.RoleAssistant || len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].Name != "get_weather" {
		t.Fatalf("unexpected assistant message: %+v", msgs[1])
	}
	if len(msgs[2].ToolResults) != 1 || msgs[2].ToolResults[0].Content != "72F and sunny" {
		t.Fatalf("unexpected tool_result message: %+v", msgs[2])
	}
}

func TestImageBlockExtracted(t *testing.T) {
	content, _ := json.Marshal([]RawBlock{
		{Type: "image", Source: &RawImageSource{Type: "base64", MediaType: "image/jpeg", Data: "abc123"}},
		{Type: "text", Text: "describe this"},
	})
	req := MessagesRequest{Messages: []RawMessage{{Role: "user", Content: content}}}
	msgs, _, _, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(msgs[0].Images) != 1 || msgs[0].Images[0].MediaType != "image/jpeg" {
		t.Fatalf("unexpected images: %+v", msgs[0].Images)
	}
}

func TestToolsMapDirectly(t *testing.T) {
	req := MessagesRequest{
		Messages: []RawMessage{{Role: "user", Content: rawString("hi")}},
		Tools:    []RawTool{{Name: "search", Description: "web search", InputSchema: map[string]any{"type": "object"}}},
	}
	_, _, tools, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}
