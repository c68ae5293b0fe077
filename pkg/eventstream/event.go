// Package eventstream decodes the upstream's AWS-style binary-framed JSON
// event stream into a sequence of typed Events.
//
// The wire format interleaves small JSON objects — one of a handful of
// shapes distinguished by their leading field — inside an AWS event-stream
// binary envelope. Rather than decode the full AWS framing, the parser
// scans the decoded text for the earliest occurrence of any of the known
// JSON-object prefixes and brace-matches from there, mirroring how the
// upstream's own reference client recovers from the framing. This makes
// the parser resilient to chunk boundaries landing anywhere, including
// mid-frame.
package eventstream

// EventType discriminates the kind of upstream event carried by an Event.
type EventType string

const (
	EventContent       EventType = "content"
	EventToolCall      EventType = "tool_call"
	EventUsage         EventType = "usage"
	EventContextUsage  EventType = "context_usage"
)

// Event is a single decoded upstream event. Exactly the fields relevant to
// Type are populated; this is Go's idiomatic stand-in for the tagged union
// the source representation uses a dynamically-typed dict for.
type Event struct {
	Type EventType

	// Content holds the text payload when Type == EventContent.
	Content string

	// ToolCall holds the finalized tool call when Type == EventToolCall.
	ToolCall *ToolCall

	// Usage holds the credit-consumption value when Type == EventUsage.
	Usage float64

	// ContextUsagePercentage holds the context-window percentage when
	// Type == EventContextUsage.
	ContextUsagePercentage float64
}

// ToolCall is a single upstream tool invocation, finalized once its start,
// optional input-continuation, and stop events have all arrived.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded object, always valid JSON once finalized

	// Truncated is true when Arguments could not be parsed as JSON and the
	// failure looks like the upstream cut the payload off mid-stream
	// rather than the model having emitted malformed JSON.
	Truncated bool
	// TruncationReason is a short human-readable diagnosis, set only when
	// Truncated is true.
	TruncationReason string
}
