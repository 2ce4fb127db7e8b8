package model

// ToolKind discriminates where a tool definition came from and therefore how
// the dispatcher executes it.
type ToolKind string

const (
	// ToolKindBuiltin is a hard-coded, schema-complete file/text tool.
	ToolKindBuiltin ToolKind = "builtin"
	// ToolKindConfig is a configuration-defined tool backed by a secondary
	// model call. It accepts a single "text" argument.
	ToolKindConfig ToolKind = "config"
	// ToolKindExternal is a tool discovered from a connected tool server.
	ToolKindExternal ToolKind = "external"
)

// ToolDefinition describes one tool offered to the model. Name is globally
// unique within the active catalog (enforced by catalog.Resolve).
type ToolDefinition struct {
	Kind        ToolKind
	Name        string
	Description string

	// Parameters is the JSON-schema parameter object sent on the wire.
	// Builtin definitions carry complete schemas; config tools carry the
	// single-text-argument schema; external tools carry the schema reported
	// by their server.
	Parameters map[string]any

	// ModelKey and SystemPrompt apply to config tools only. ModelKey is
	// resolved through the configuration's model registry.
	ModelKey     string
	SystemPrompt string

	// Server names the owning connection for external tools.
	Server string
}

// ToolResult is the outcome of executing one tool call. Failures are values,
// not errors: the orchestrator folds IsError results into history as
// ordinary tool-message content so the model can react to them.
type ToolResult struct {
	Text    string
	IsError bool
}

// ErrorResult builds an error-flagged result in the key=value notice
// format tool messages use.
func ErrorResult(kv string) ToolResult {
	return ToolResult{Text: "Error: " + kv, IsError: true}
}

// SuccessResult builds a success result in the same notice format.
func SuccessResult(kv string) ToolResult {
	return ToolResult{Text: "Success: " + kv}
}
