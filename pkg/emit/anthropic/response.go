package anthropic

import (
	"encoding/json"

	"mercator-hq/relay/pkg/emit"
)

// ToolUseOut is a finalized tool call for the non-streaming response body.
type ToolUseOut struct {
	ID, Name, Input string
}

// BuildResponse assembles a complete (non-streaming) Messages API response.
func BuildResponse(id, model, text, thinkingText string, toolCalls []ToolUseOut, usage emit.Usage) map[string]any {
	var content []map[string]any
	if thinkingText != "" {
		content = append(content, map[string]any{"type": "thinking", "thinking": thinkingText})
	}
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	stopReason := "end_turn"
	for _, tc := range toolCalls {
		var input map[string]any
		_ = jsonUnmarshal(tc.Input, &input)
		content = append(content, map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": input})
		stopReason = "tool_use"
	}

	return map[string]any{
		"id": id, "type": "message", "role": "assistant", "model": model,
		"content": content, "stop_reason": stopReason, "stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  usage.PromptTokens,
			"output_tokens": usage.CompletionTokens,
		},
	}
}

func jsonUnmarshal(s string, v *map[string]any) error {
	if s == "" {
		*v = map[string]any{}
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
