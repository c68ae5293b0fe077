package openai

import (
	"encoding/json"
	"testing"

	"mercator-hq/relay/pkg/unified"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestSystemMessagesConcatenated(t *testing.T) {
	req := ChatRequest{Messages: []RawMessage{
		{Role: "system", Content: rawString("be terse")},
		{Role: "system", Content: rawString("never apologize")},
		{Role: "user", Content: rawString("hi")},
	}}
	msgs, system, _, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if system != "be terse\nnever apologize" {
		t.Fatalf("system = %q", system)
	}
	if len(msgs) != 1 || msgs[0].Role != unified.RoleUser || msgs[0].Text != "hi" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestConsecutiveToolMessagesMerge(t *testing.T) {
	req := ChatRequest{Messages: []RawMessage{
		{Role: "user", Content: rawString("run two tools")},
		{Role: "assistant", ToolCalls: []RawToolCall{
			{ID: "call_1", Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: "a", Arguments: "{}"}},
		}},
		{Role: "tool", ToolCallID: "call_1", Content: rawString("result a")},
		{Role: "tool", ToolCallID: "call_2", Content: rawString("")},
	}}
	msgs, _, _, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	last := msgs[len(msgs)-1]
	if len(last.ToolResults) != 2 {
		t.Fatalf("expected merged tool results, got %+v", last)
	}
	if last.ToolResults[1].Content != "(empty result)" {
		t.Fatalf("expected empty-result placeholder, got %q", last.ToolResults[1].Content)
	}
}

func TestToolSchemaNestedWinsOverFlat(t *testing.T) {
	req := ChatRequest{
		Messages: []RawMessage{{Role: "user", Content: rawString("hi")}},
		Tools: []RawTool{{
			Type: "function",
			Function: &struct {
				Name        string         `json:"name"`
				Description string         `json:"description"`
				Parameters  map[string]any `json:"parameters"`
			}{Name: "nested_name", Description: "nested desc", Parameters: map[string]any{"type": "object"}},
			Name:        "flat_name",
			Description: "flat desc",
		}},
	}
	_, _, tools, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "nested_name" {
		t.Fatalf("expected nested shape to win, got %+v", tools)
	}
}

func TestImageDataURLExtracted(t *testing.T) {
	content, _ := json.Marshal([]RawContentBlock{
		{Type: "text", Text: "what is this"},
		{Type: "image_url", ImageURL: &struct {
			URL string `json:"url"`
		}{URL: "data:image/png;base64,aGVsbG8="}},
	})
	req := ChatRequest{Messages: []RawMessage{{Role: "user", Content: content}}}
	msgs, _, _, err := Translate(req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(msgs[0].Images) != 1 || msgs[0].Images[0].MediaType != "image/png" {
		t.Fatalf("expected one image extracted, got %+v", msgs[0].Images)
	}
}
