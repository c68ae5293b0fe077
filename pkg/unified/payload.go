package unified

// WireImage is an image in the upstream's expected shape.
type WireImage struct {
	MediaType string `json:"format"`
	Data      string `json:"bytes"`
}

// WireToolUse is an assistant tool invocation in history.
type WireToolUse struct {
	ID    string `json:"toolUseId"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// WireToolResult is a tool result attached to a user turn.
type WireToolResult struct {
	ToolUseID string      `json:"toolUseId"`
	Content   string      `json:"content"`
	Images    []WireImage `json:"images,omitempty"`
}

// WireTool is a tool declaration in the upstream's expected shape.
type WireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// UserInputMessageContext carries the optional tools/toolResults a user turn
// may attach.
type UserInputMessageContext struct {
	Tools       []WireTool       `json:"tools,omitempty"`
	ToolResults []WireToolResult `json:"toolResults,omitempty"`
}

// UserInputMessage is a user turn, either the current message or a history
// entry.
type UserInputMessage struct {
	Content string                   `json:"content"`
	ModelID string                   `json:"modelId,omitempty"`
	Images  []WireImage              `json:"images,omitempty"`
	Context *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// AssistantResponseMessage is a prior assistant turn in history.
type AssistantResponseMessage struct {
	Content  string        `json:"content"`
	ToolUses []WireToolUse `json:"toolUses,omitempty"`
}

// HistoryEntry is exactly one of UserInputMessage or AssistantResponseMessage.
type HistoryEntry struct {
	UserInputMessage          *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage  *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// CurrentMessage wraps the single current-turn user message.
type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

// Payload is the upstream generateAssistantResponse request body.
type Payload struct {
	ConversationID string         `json:"conversationId"`
	ProfileARN     string         `json:"profileArn,omitempty"`
	History        []HistoryEntry `json:"history,omitempty"`
	CurrentMessage CurrentMessage `json:"currentMessage"`
}
