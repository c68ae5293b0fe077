package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/relayerr"
	"mercator-hq/relay/pkg/unified"
)

// Translate converts an Anthropic-dialect messages request into the
// unified message model.
func Translate(req MessagesRequest) ([]unified.Message, string, []unified.Tool, error) {
	if len(req.Messages) == 0 {
		return nil, "", nil, relayerr.New(relayerr.KindInvalidRequest, 400, "messages must not be empty")
	}

	system, err := decodeSystem(req.System)
	if err != nil {
		return nil, "", nil, err
	}

	var out []unified.Message
	for _, m := range req.Messages {
		um, err := translateMessage(m)
		if err != nil {
			return nil, "", nil, err
		}
		out = append(out, um)
	}

	var tools []unified.Tool
	for _, t := range req.Tools {
		if t.Name == "" {
			continue
		}
		tools = append(tools, unified.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	return out, system, tools, nil
}

// decodeSystem handles both the plain-string and list-of-text-blocks forms
// of the "system" field, stripping any cache_control annotations.
func decodeSystem(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var blocks []RawBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", fmt.Errorf("anthropic: decode system: %w", err)
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func translateMessage(m RawMessage) (unified.Message, error) {
	role := unified.RoleUser
	if m.Role == "assistant" {
		role = unified.RoleAssistant
	}

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		return unified.Message{Role: role, Text: asString}, nil
	}

	var blocks []RawBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return unified.Message{}, fmt.Errorf("anthropic: decode message content: %w", err)
	}

	um := unified.Message{Role: role}
	var textParts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "image":
			if b.Source != nil {
				um.Images = append(um.Images, unified.Image{MediaType: b.Source.MediaType, Data: b.Source.Data})
			}
		case "tool_use":
			um.ToolCalls = append(um.ToolCalls, unified.ToolCall{ID: b.ID, Name: b.Name, Arguments: rawJSONOrEmptyObject(b.Input)})
		case "tool_result":
			text, images := decodeToolResultContent(b.Content)
			um.ToolResults = append(um.ToolResults, unified.ToolResult{ToolUseID: b.ToolUseID, Content: text, Images: images})
		}
	}
	um.Text = strings.Join(textParts, "\n")
	return um, nil
}

// decodeToolResultContent handles a tool_result block's "content", which is
// itself either a plain string or a list of text/image blocks.
func decodeToolResultContent(raw json.RawMessage) (string, []unified.Image) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var blocks []RawBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil
	}
	var textParts []string
	var images []unified.Image
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "image":
			if b.Source != nil {
				images = append(images, unified.Image{MediaType: b.Source.MediaType, Data: b.Source.Data})
			}
		}
	}
	return strings.Join(textParts, "\n"), images
}

func rawJSONOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
