package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/relayerr"
	"mercator-hq/relay/pkg/unified"
)

// Translate converts an OpenAI-dialect chat request into the unified
// message model: system messages are concatenated, "tool" role messages
// become synthetic user turns carrying tool_results, and images are lifted
// out of content blocks.
func Translate(req ChatRequest) ([]unified.Message, string, []unified.Tool, error) {
	if len(req.Messages) == 0 {
		return nil, "", nil, relayerr.New(relayerr.KindInvalidRequest, 400, "messages must not be empty")
	}

	var systemParts []string
	var out []unified.Message

	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			text, _, _ := decodeContent(m.Content)
			if text != "" {
				systemParts = append(systemParts, text)
			}

		case "tool":
			text, images, _ := decodeContent(m.Content)
			if strings.TrimSpace(text) == "" {
				text = "(empty result)"
			}
			result := unified.ToolResult{ToolUseID: m.ToolCallID, Content: text, Images: images}
			if len(out) > 0 && out[len(out)-1].Role == unified.RoleUser && isSyntheticToolResultMessage(out[len(out)-1]) {
				out[len(out)-1].ToolResults = append(out[len(out)-1].ToolResults, result)
				continue
			}
			out = append(out, unified.Message{Role: unified.RoleUser, ToolResults: []unified.ToolResult{result}})

		case "assistant":
			text, _, _ := decodeContent(m.Content)
			um := unified.Message{Role: unified.RoleAssistant, Text: text}
			for _, tc := range m.ToolCalls {
				um.ToolCalls = append(um.ToolCalls, unified.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
			}
			out = append(out, um)

		default: // "user"
			text, images, _ := decodeContent(m.Content)
			out = append(out, unified.Message{Role: unified.RoleUser, Text: text, Images: images})
		}
	}

	tools, err := translateTools(req.Tools)
	if err != nil {
		return nil, "", nil, err
	}

	return out, strings.Join(systemParts, "\n"), tools, nil
}

// isSyntheticToolResultMessage reports whether m was built from merging
// consecutive "tool" role messages, i.e. it carries nothing but tool
// results and no text of its own.
func isSyntheticToolResultMessage(m unified.Message) bool {
	return len(m.ToolResults) > 0 && m.Text == "" && len(m.ToolCalls) == 0
}

// decodeContent handles both the plain-string and typed-content-block forms
// of an OpenAI message's "content" field.
func decodeContent(raw json.RawMessage) (text string, images []unified.Image, err error) {
	if len(raw) == 0 {
		return "", nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil, nil
	}

	var blocks []RawContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, fmt.Errorf("openai: decode content: %w", err)
	}

	var textParts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "image_url":
			if b.ImageURL == nil {
				continue
			}
			if img, ok := decodeDataURL(b.ImageURL.URL); ok {
				images = append(images, img)
			}
		}
	}
	return strings.Join(textParts, "\n"), images, nil
}

// decodeDataURL parses a "data:<media-type>;base64,<data>" URL, the only
// inline image form OpenAI-dialect clients send.
func decodeDataURL(url string) (unified.Image, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return unified.Image{}, false
	}
	rest := url[len(prefix):]
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return unified.Image{}, false
	}
	mediaType := rest[:semi]
	data := rest[semi+len(";base64,"):]
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return unified.Image{}, false
	}
	return unified.Image{MediaType: mediaType, Data: data}, true
}

// translateTools accepts both the nested {type:"function",function:{...}}
// shape and the flat Cursor-style shape; the nested shape wins when both
// are present on the same entry, and invalid entries (no name) are skipped.
func translateTools(raw []RawTool) ([]unified.Tool, error) {
	var out []unified.Tool
	for _, t := range raw {
		var tool unified.Tool
		switch {
		case t.Function != nil:
			tool = unified.Tool{Name: t.Function.Name, Description: t.Function.Description, InputSchema: t.Function.Parameters}
		case t.Name != "":
			tool = unified.Tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
		default:
			continue
		}
		if tool.Name == "" {
			continue
		}
		out = append(out, tool)
	}
	return out, nil
}
