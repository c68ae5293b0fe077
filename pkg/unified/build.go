package unified

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"mercator-hq/relay/pkg/relayerr"
)

const (
	defaultMaxThinkingLength       = 4096
	defaultToolDescriptionMaxChars = 10_000
)

// BuildInput is everything the common unified→upstream build step (4.4.1)
// needs, gathered by a dialect translator.
type BuildInput struct {
	Messages          []Message
	System            string
	Model             string
	Tools             []Tool
	ConversationID    string
	ProfileARN        string // only stamped for the simple-refresh credential family
	InjectThinking    bool
	MaxThinkingLength int
	ToolDescMaxLength int
}

// Build converts a unified message sequence plus ancillary context into the
// upstream request payload.
func Build(in BuildInput) (*Payload, error) {
	if !hasConversationTurn(in.Messages) {
		return nil, relayerr.New(relayerr.KindInvalidRequest, 400, "request contains no user or assistant message")
	}

	history, current := splitCurrent(in.Messages)

	content := current.Text
	if in.System != "" {
		content = in.System + "\n\n" + content
	}
	if in.InjectThinking {
		maxLen := in.MaxThinkingLength
		if maxLen <= 0 {
			maxLen = defaultMaxThinkingLength
		}
		content = fmt.Sprintf("<thinking_mode>enabled</thinking_mode><max_thinking_length>%d</max_thinking_length>%s", maxLen, content)
	}

	maxDescLen := in.ToolDescMaxLength
	if maxDescLen <= 0 {
		maxDescLen = defaultToolDescriptionMaxChars
	}

	var wireTools []WireTool
	for _, t := range in.Tools {
		desc := strings.TrimSpace(t.Description)
		if desc == "" {
			desc = fmt.Sprintf("Tool: %s", t.Name)
		}
		schema := sanitizeSchema(t.InputSchema)
		if len(desc) > maxDescLen {
			content += fmt.Sprintf("\n\n## Tool: %s\n%s", t.Name, desc)
			desc = fmt.Sprintf("[Full documentation in system prompt under '## Tool: %s']", t.Name)
		}
		wireTools = append(wireTools, WireTool{Name: t.Name, Description: desc, InputSchema: schema})
	}

	userMsg := UserInputMessage{
		Content: content,
		ModelID: in.Model,
		Images:  toWireImages(current.Images),
	}
	toolResults := toWireToolResults(current.ToolResults)
	if len(wireTools) > 0 || len(toolResults) > 0 {
		userMsg.Context = &UserInputMessageContext{Tools: wireTools, ToolResults: toolResults}
	}

	var wireHistory []HistoryEntry
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			am := AssistantResponseMessage{Content: m.Text}
			for _, tc := range m.ToolCalls {
				am.ToolUses = append(am.ToolUses, WireToolUse{ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			wireHistory = append(wireHistory, HistoryEntry{AssistantResponseMessage: &am})
		default:
			hm := UserInputMessage{Content: m.Text, ModelID: in.Model, Images: toWireImages(m.Images)}
			if results := toWireToolResults(m.ToolResults); len(results) > 0 {
				hm.Context = &UserInputMessageContext{ToolResults: results}
			}
			wireHistory = append(wireHistory, HistoryEntry{UserInputMessage: &hm})
		}
	}

	return &Payload{
		ConversationID: in.ConversationID,
		ProfileARN:     in.ProfileARN,
		History:        wireHistory,
		CurrentMessage: CurrentMessage{UserInputMessage: userMsg},
	}, nil
}

func hasConversationTurn(messages []Message) bool {
	for _, m := range messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			return true
		}
	}
	return false
}

// splitCurrent implements step 2: the trailing user turn becomes the
// current message; a trailing assistant turn is preserved in history and a
// synthetic "Continue" current message is built instead.
func splitCurrent(messages []Message) (history []Message, current Message) {
	if len(messages) == 0 {
		return nil, Message{Role: RoleUser, Text: "Continue"}
	}
	last := messages[len(messages)-1]
	if last.Role == RoleUser {
		return messages[:len(messages)-1], last
	}
	return messages, Message{Role: RoleUser, Text: "Continue"}
}

func toWireImages(images []Image) []WireImage {
	if len(images) == 0 {
		return nil
	}
	out := make([]WireImage, len(images))
	for i, img := range images {
		out[i] = WireImage{MediaType: img.MediaType, Data: img.Data}
	}
	return out
}

func toWireToolResults(results []ToolResult) []WireToolResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]WireToolResult, len(results))
	for i, r := range results {
		out[i] = WireToolResult{ToolUseID: r.ToolUseID, Content: r.Content, Images: toWireImages(r.Images)}
	}
	return out
}

// sanitizeSchema strips keys the upstream rejects and, best-effort, compiles
// the result as a JSON Schema so a malformed tool definition is at least
// logged rather than silently forwarded; the resolver's passthrough
// philosophy applies here too — the upstream remains the final arbiter.
func sanitizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "required" || k == "additionalProperties" {
			continue
		}
		out[k] = v
	}
	validateSchemaBestEffort(out)
	return out
}

func validateSchemaBestEffort(schema map[string]any) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool-schema.json", schema); err != nil {
		return
	}
	if _, err := c.Compile("tool-schema.json"); err != nil {
		slog.Default().Debug("tool input schema does not compile as JSON Schema", "error", err)
	}
}
