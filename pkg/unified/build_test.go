package unified

import "testing"

func TestBuildRejectsEmptyMessages(t *testing.T) {
	_, err := Build(BuildInput{Model: "claude-sonnet-4.5"})
	if err == nil {
		t.Fatal("expected error for empty message list")
	}
}

func TestBuildTrailingUserBecomesCurrent(t *testing.T) {
	payload, err := Build(BuildInput{
		Model: "claude-sonnet-4.5",
		Messages: []Message{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleAssistant, Text: "hello"},
			{Role: RoleUser, Text: "how are you"},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if payload.CurrentMessage.UserInputMessage.Content != "how are you" {
		t.Fatalf("current message = %q", payload.CurrentMessage.UserInputMessage.Content)
	}
	if len(payload.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(payload.History))
	}
}

func TestBuildTrailingAssistantSynthesizesContinue(t *testing.T) {
	payload, err := Build(BuildInput{
		Model: "claude-sonnet-4.5",
		Messages: []Message{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleAssistant, Text: "hello there"},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if payload.CurrentMessage.UserInputMessage.Content != "Continue" {
		t.Fatalf("expected synthetic Continue message, got %q", payload.CurrentMessage.UserInputMessage.Content)
	}
	if len(payload.History) != 2 {
		t.Fatalf("expected both turns preserved in history, got %d", len(payload.History))
	}
}

func TestBuildPrependsSystemPrompt(t *testing.T) {
	payload, err := Build(BuildInput{
		Model:  "claude-sonnet-4.5",
		System: "be terse",
		Messages: []Message{
			{Role: RoleUser, Text: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := "be terse\n\nhi"
	if payload.CurrentMessage.UserInputMessage.Content != want {
		t.Fatalf("content = %q, want %q", payload.CurrentMessage.UserInputMessage.Content, want)
	}
}

func TestBuildInjectsThinkingTag(t *testing.T) {
	payload, err := Build(BuildInput{
		Model:             "claude-sonnet-4.5",
		InjectThinking:    true,
		MaxThinkingLength: 2048,
		Messages:          []Message{{Role: RoleUser, Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	content := payload.CurrentMessage.UserInputMessage.Content
	if !contains(content, "<thinking_mode>enabled</thinking_mode>") || !contains(content, "<max_thinking_length>2048</max_thinking_length>") {
		t.Fatalf("missing thinking tags: %q", content)
	}
}

func TestBuildRelocatesOverlongToolDescription(t *testing.T) {
	longDesc := make([]byte, 50)
	for i := range longDesc {
		longDesc[i] = 'x'
	}
	payload, err := Build(BuildInput{
		Model:             "claude-sonnet-4.5",
		ToolDescMaxLength: 10,
		Messages:          []Message{{Role: RoleUser, Text: "hi"}},
		Tools:             []Tool{{Name: "search", Description: string(longDesc), InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tool := payload.CurrentMessage.UserInputMessage.Context.Tools[0]
	if tool.Description != "[Full documentation in system prompt under '## Tool: search']" {
		t.Fatalf("unexpected pointer description: %q", tool.Description)
	}
	if !contains(payload.CurrentMessage.UserInputMessage.Content, "## Tool: search") {
		t.Fatal("expected full description relocated into content")
	}
}

func TestBuildSanitizesToolSchema(t *testing.T) {
	payload, err := Build(BuildInput{
		Model:    "claude-sonnet-4.5",
		Messages: []Message{{Role: RoleUser, Text: "hi"}},
		Tools: []Tool{{
			Name: "search",
			InputSchema: map[string]any{
				"type":                 "object",
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	schema := payload.CurrentMessage.UserInputMessage.Context.Tools[0].InputSchema
	if _, ok := schema["required"]; ok {
		t.Fatal("expected required stripped")
	}
	if _, ok := schema["additionalProperties"]; ok {
		t.Fatal("expected additionalProperties stripped")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOfSubstr(s, substr) >= 0
}

func indexOfSubstr(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
