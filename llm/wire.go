package llm

import "lcoder/model"

// Wire types for the OpenAI-compatible chat-completions protocol.

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []wireMessage `json:"messages"`
	Stream     bool          `json:"stream"`
	Tools      []wireTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolCallFunc `json:"function"`
}

type wireToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatChunk struct {
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type chunkDelta struct {
	Content   string          `json:"content"`
	ToolCalls []deltaToolCall `json:"tool_calls"`
}

type deltaToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id"`
	Function wireToolCallFunc `json:"function"`
}

func buildRequest(req Request) chatRequest {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallFunc{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		msgs = append(msgs, wm)
	}

	out := chatRequest{
		Model:      req.Model,
		Messages:   msgs,
		Stream:     true,
		ToolChoice: req.ToolChoice,
	}

	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out.Tools = append(out.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// Accumulator reassembles partial tool calls from tool-call deltas, keyed by
// stream index. ID and Name patches fill empty fields; Arguments fragments
// are always concatenated in arrival order.
type Accumulator struct {
	calls []model.ToolCall
	seen  []bool
}

// Apply merges one tool-call delta.
func (a *Accumulator) Apply(ev StreamEvent) {
	if ev.Index < 0 {
		return
	}
	for ev.Index >= len(a.calls) {
		a.calls = append(a.calls, model.ToolCall{})
		a.seen = append(a.seen, false)
	}
	call := &a.calls[ev.Index]
	a.seen[ev.Index] = true
	if ev.ID != "" && call.ID == "" {
		call.ID = ev.ID
	}
	if ev.Name != "" && call.Name == "" {
		call.Name = ev.Name
	}
	call.Arguments += ev.Arguments
}

// Calls returns the reassembled tool calls in index order.
func (a *Accumulator) Calls() []model.ToolCall {
	out := make([]model.ToolCall, 0, len(a.calls))
	for i, seen := range a.seen {
		if seen {
			out = append(out, a.calls[i])
		}
	}
	return out
}

// Len reports how many tool calls have been observed.
func (a *Accumulator) Len() int {
	n := 0
	for _, seen := range a.seen {
		if seen {
			n++
		}
	}
	return n
}
