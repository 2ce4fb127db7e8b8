package model

// Message roles on the chat-completions wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function call requested by the assistant. Arguments is the
// raw JSON-encoded string assembled from stream fragments; it is not
// guaranteed to parse until the turn completes.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents one entry in the conversation history.
//
// Invariant: a tool message always carries ToolCallID referencing a
// ToolCall.ID from the immediately preceding assistant message. An assistant
// message with ToolCalls set may have empty content.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewAssistantMessage builds an assistant message, optionally carrying the
// tool calls accumulated during streaming.
func NewAssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// NewToolMessage builds the tool-result message correlated to a tool call.
func NewToolMessage(content, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// IsToolMessage reports whether m is a well-formed tool-result message.
func IsToolMessage(m Message) bool {
	return m.Role == RoleTool && m.ToolCallID != ""
}

// CopyHistory returns a defensive copy of a message slice. Nested ToolCalls
// slices are copied as well so callers cannot mutate committed history.
func CopyHistory(history []Message) []Message {
	out := make([]Message, len(history))
	for i, m := range history {
		out[i] = m
		if len(m.ToolCalls) > 0 {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}
