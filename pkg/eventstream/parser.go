package eventstream

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// eventPattern pairs a JSON-object prefix with the kind of raw event it
// introduces. Order does not matter for matching — Feed always picks
// whichever pattern's prefix occurs earliest in the buffer — but it
// mirrors the reference implementation's declaration order.
var eventPatterns = []struct {
	prefix string
	kind   string
}{
	{`{"content":`, "content"},
	{`{"name":`, "tool_start"},
	{`{"input":`, "tool_input"},
	{`{"stop":`, "tool_stop"},
	{`{"followupPrompt":`, "followup"},
	{`{"usage":`, "usage"},
	{`{"contextUsagePercentage":`, "context_usage"},
}

type rawEvent struct {
	Content                *string         `json:"content"`
	FollowupPrompt         *string         `json:"followupPrompt"`
	Name                   *string         `json:"name"`
	ToolUseID              *string         `json:"toolUseId"`
	Input                  json.RawMessage `json:"input"`
	Stop                   *bool           `json:"stop"`
	Usage                  *float64        `json:"usage"`
	ContextUsagePercentage *float64        `json:"contextUsagePercentage"`
}

// Parser incrementally decodes the upstream's binary-framed JSON event
// stream. Feed bytes as they arrive over the wire; each call returns the
// events that became decodable. This is the stateful-iterator shape the
// reference coroutine-based parser is reimplemented as: no goroutine is
// needed because the caller already owns the read loop driving bytes in.
type Parser struct {
	buffer string

	lastContent     *string
	currentToolCall *pendingToolCall
	toolCalls       []*ToolCall

	logger *slog.Logger
}

type pendingToolCall struct {
	id        string
	name      string
	arguments string
}

// New constructs a Parser.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "eventstream.parser")}
}

// Feed appends chunk to the internal buffer and returns every event that
// could be fully decoded from it. Bytes that don't yet form a complete
// JSON object are retained for the next call.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buffer += string(chunk)

	var events []Event
	for {
		earliestPos := -1
		earliestKind := ""
		for _, ep := range eventPatterns {
			pos := indexOf(p.buffer, ep.prefix)
			if pos != -1 && (earliestPos == -1 || pos < earliestPos) {
				earliestPos = pos
				earliestKind = ep.kind
			}
		}
		if earliestPos == -1 {
			break
		}

		jsonEnd := findMatchingBrace(p.buffer, earliestPos)
		if jsonEnd == -1 {
			break // incomplete JSON, wait for more data
		}

		jsonStr := p.buffer[earliestPos : jsonEnd+1]
		p.buffer = p.buffer[jsonEnd+1:]

		var raw rawEvent
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			p.logger.Warn("failed to parse event JSON", "error", err, "kind", earliestKind)
			continue
		}

		if ev, ok := p.process(raw, earliestKind); ok {
			events = append(events, ev)
		}
	}
	return events
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (p *Parser) process(raw rawEvent, kind string) (Event, bool) {
	switch kind {
	case "content":
		return p.processContent(raw)
	case "tool_start":
		p.processToolStart(raw)
		return Event{}, false
	case "tool_input":
		p.processToolInput(raw)
		return Event{}, false
	case "tool_stop":
		p.processToolStop(raw)
		return Event{}, false
	case "usage":
		usage := 0.0
		if raw.Usage != nil {
			usage = *raw.Usage
		}
		return Event{Type: EventUsage, Usage: usage}, true
	case "context_usage":
		pct := 0.0
		if raw.ContextUsagePercentage != nil {
			pct = *raw.ContextUsagePercentage
		}
		return Event{Type: EventContextUsage, ContextUsagePercentage: pct}, true
	}
	return Event{}, false
}

func (p *Parser) processContent(raw rawEvent) (Event, bool) {
	if raw.FollowupPrompt != nil && *raw.FollowupPrompt != "" {
		return Event{}, false
	}
	content := ""
	if raw.Content != nil {
		content = *raw.Content
	}
	if p.lastContent != nil && *p.lastContent == content {
		return Event{}, false
	}
	p.lastContent = &content
	return Event{Type: EventContent, Content: content}, true
}

func (p *Parser) processToolStart(raw rawEvent) {
	if p.currentToolCall != nil {
		p.finalizeToolCall()
	}

	id := ""
	if raw.ToolUseID != nil {
		id = *raw.ToolUseID
	}
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	name := ""
	if raw.Name != nil {
		name = *raw.Name
	}

	p.currentToolCall = &pendingToolCall{
		id:        id,
		name:      name,
		arguments: decodeInput(raw.Input),
	}

	if raw.Stop != nil && *raw.Stop {
		p.finalizeToolCall()
	}
}

func (p *Parser) processToolInput(raw rawEvent) {
	if p.currentToolCall == nil {
		return
	}
	p.currentToolCall.arguments += decodeInput(raw.Input)
}

func (p *Parser) processToolStop(raw rawEvent) {
	if p.currentToolCall != nil && raw.Stop != nil && *raw.Stop {
		p.finalizeToolCall()
	}
}

// decodeInput normalizes the "input" field of a tool_start/tool_input
// event, which upstream sends as either a JSON object or a bare string.
func decodeInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		encoded, err := json.Marshal(asObject)
		if err == nil {
			return string(encoded)
		}
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return ""
}

func (p *Parser) finalizeToolCall() {
	if p.currentToolCall == nil {
		return
	}
	pending := p.currentToolCall
	p.currentToolCall = nil

	tc := &ToolCall{ID: pending.id, Name: pending.name}

	args := pending.arguments
	switch {
	case args == "":
		tc.Arguments = "{}"
	default:
		var parsed any
		if err := json.Unmarshal([]byte(args), &parsed); err != nil {
			diag := diagnoseTruncation(args)
			if diag.IsTruncated {
				tc.Truncated = true
				tc.TruncationReason = diag.Reason
				p.logger.Error("tool call truncated by upstream",
					"tool", pending.name, "id", pending.id, "size_bytes", diag.SizeBytes, "reason", diag.Reason)
			} else {
				p.logger.Warn("failed to parse tool call arguments", "tool", pending.name, "error", err)
			}
			tc.Arguments = "{}"
		} else {
			normalized, _ := json.Marshal(parsed)
			tc.Arguments = string(normalized)
		}
	}

	p.toolCalls = append(p.toolCalls, tc)
}

// ToolCalls returns every tool call collected so far, finalizing an
// in-progress one if present, deduplicated.
func (p *Parser) ToolCalls() []*ToolCall {
	if p.currentToolCall != nil {
		p.finalizeToolCall()
	}
	return DeduplicateToolCalls(p.toolCalls)
}

// Reset clears all parser state so the same Parser can be reused for a new
// request.
func (p *Parser) Reset() {
	p.buffer = ""
	p.lastContent = nil
	p.currentToolCall = nil
	p.toolCalls = nil
}
