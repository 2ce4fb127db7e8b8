package model

// AgentEventType tags the events emitted to the caller during a turn.
type AgentEventType string

const (
	EventContentDelta      AgentEventType = "content-delta"
	EventToolStarted       AgentEventType = "tool-execution-started"
	EventToolCompleted     AgentEventType = "tool-execution-completed"
	EventToolFailed        AgentEventType = "tool-execution-failed"
	EventApprovalRequested AgentEventType = "approval-requested"
	EventApprovalResolved  AgentEventType = "approval-resolved"
	EventTurnComplete      AgentEventType = "turn-complete"
	EventTurnError         AgentEventType = "turn-error"
)

// AgentEvent is one value on the caller-facing event stream.
type AgentEvent struct {
	Type AgentEventType

	// Content carries the text of a content-delta.
	Content string

	// ToolName identifies the tool for tool-execution and approval events.
	ToolName string
	// ToolArgs carries the raw JSON arguments on approval-requested.
	ToolArgs string
	// DiffPreview carries the per-edit diff rendering for edit-class
	// approvals, display only.
	DiffPreview string
	// Approved reports the decision on approval-resolved.
	Approved bool

	// Err carries the detail for tool-execution-failed and turn-error.
	Err string
}

// Profile is a resolved coder profile from configuration: which endpoint and
// model drive the conversation, plus presentation hints.
type Profile struct {
	Name         string
	Endpoint     string
	Model        string
	Color        string
	SystemPrompt string
}
