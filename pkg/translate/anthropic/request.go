// Package anthropic translates Anthropic-dialect /v1/messages requests
// into the unified message model; the reverse direction is handled by
// pkg/emit/anthropic.
package anthropic

import "encoding/json"

// MessagesRequest is the raw incoming /v1/messages body. System may be a
// plain string or a list of text blocks with optional cache-control
// annotations, so it is decoded lazily via RawMessage.
type MessagesRequest struct {
	Model     string          `json:"model"`
	System    json.RawMessage `json:"system,omitempty"`
	Messages  []RawMessage    `json:"messages"`
	Stream    bool            `json:"stream"`
	Tools     []RawTool       `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// RawMessage is one element of "messages". Content may be a plain string
// or a list of typed blocks (text/image/tool_use/tool_result).
type RawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// RawBlock is one typed content block.
type RawBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *RawImageSource `json:"source,omitempty"`

	// tool_use (assistant)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result (user)
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// RawImageSource is an inline base64 image source block.
type RawImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// RawTool maps directly onto the unified tool model.
type RawTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
