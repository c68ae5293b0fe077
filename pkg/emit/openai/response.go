package openai

import "mercator-hq/relay/pkg/emit"

// ToolCallOut is a finalized tool call for the non-streaming response body.
type ToolCallOut struct {
	ID, Name, Arguments string
}

// BuildResponse assembles a complete (non-streaming) chat.completion body.
func BuildResponse(id, model string, created int64, text string, toolCalls []ToolCallOut, usage emit.Usage) map[string]any {
	message := map[string]any{"role": "assistant", "content": text}
	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
		message["content"] = nil
		var calls []map[string]any
		for _, tc := range toolCalls {
			calls = append(calls, map[string]any{
				"id": tc.ID, "type": "function",
				"function": map[string]any{"name": tc.Name, "arguments": tc.Arguments},
			})
		}
		message["tool_calls"] = calls
	}

	return map[string]any{
		"id": id, "object": "chat.completion", "created": created, "model": model,
		"choices": []map[string]any{{
			"index": 0, "message": message, "finish_reason": finishReason,
		}},
		"usage": map[string]any{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	}
}
