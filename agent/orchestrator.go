// Package agent drives the multi-turn conversation loop: it owns the
// conversation history, streams model output to the caller, gates tool
// execution behind approvals, and folds tool results back into the next
// model round-trip.
package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"

	"lcoder/catalog"
	"lcoder/config"
	"lcoder/llm"
	"lcoder/mcp"
	"lcoder/model"
	"lcoder/storage"
	"lcoder/tools"
)

// Decision resolves a pending approval.
type Decision int

const (
	Approve Decision = iota
	Deny
	Cancel
)

// PendingApproval is the single in-flight approval, if any.
type PendingApproval struct {
	ToolCall    model.ToolCall
	DiffPreview string
}

// pendingState pairs the visible approval with its one-shot reply channel.
// The channel is buffered so resolving never blocks the caller, even if the
// decision lands before the turn goroutine reaches its receive.
type pendingState struct {
	info     PendingApproval
	reply    chan Decision
	resolved bool
}

// Orchestrator is the agent state machine. One conversation thread, one
// turn at a time, one pending approval at a time. History is owned
// exclusively by the orchestrator and mutated only by the running turn.
type Orchestrator struct {
	cfg      *config.Config
	client   *llm.Client
	servers  *mcp.Manager
	toolset  *tools.Toolset
	dispatch *Dispatcher
	store    *storage.SessionStore

	mu            sync.Mutex
	history       []model.Message
	activeProfile string
	sessionID     string
	turnActive    bool
	pending       *pendingState

	cancelled  atomic.Bool
	cancelTurn context.CancelFunc
}

// New wires an orchestrator. store may be nil to disable transcript
// persistence.
func New(cfg *config.Config, client *llm.Client, servers *mcp.Manager, toolset *tools.Toolset, store *storage.SessionStore) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		servers:  servers,
		toolset:  toolset,
		dispatch: NewDispatcher(toolset, cfg, servers),
		store:    store,
	}
}

// ListProfiles returns the configured coder profiles.
func (o *Orchestrator) ListProfiles() []model.Profile {
	return o.cfg.Profiles()
}

// GetHistory returns a defensive copy of the conversation history.
func (o *Orchestrator) GetHistory() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.CopyHistory(o.history)
}

// ResetConversation clears history and starts a fresh session. Rejected
// while a turn is running.
func (o *Orchestrator) ResetConversation() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnActive {
		return fmt.Errorf("cannot reset while a turn is active")
	}
	o.history = nil
	o.sessionID = ""
	return nil
}

// Pending returns a copy of the in-flight approval, if any.
func (o *Orchestrator) Pending() *PendingApproval {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return nil
	}
	p := o.pending.info
	return &p
}

// ResolveApproval resolves the pending approval. It fails when nothing is
// awaiting a decision.
func (o *Orchestrator) ResolveApproval(d Decision) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil || o.pending.resolved {
		return fmt.Errorf("no approval pending")
	}
	o.pending.resolved = true
	o.pending.reply <- d
	return nil
}

// CancelTurn requests cooperative cancellation of the running turn. The
// flag is checked at every suspension point; an in-flight stream stops
// forwarding and no partial assistant message is committed.
func (o *Orchestrator) CancelTurn() {
	o.mu.Lock()
	cancel := o.cancelTurn
	o.mu.Unlock()
	o.cancelled.Store(true)
	if cancel != nil {
		cancel()
	}
}

// SubmitTurn starts a new turn for the named profile and returns the event
// stream for it. The channel closes when the turn reaches turn-complete or
// turn-error. Switching profiles resets the conversation.
func (o *Orchestrator) SubmitTurn(profileName, userText string) (<-chan model.AgentEvent, error) {
	profile, ok := o.cfg.FindProfile(profileName)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", profileName)
	}

	o.mu.Lock()
	if o.turnActive {
		o.mu.Unlock()
		return nil, fmt.Errorf("a turn is already active")
	}
	if o.activeProfile != "" && o.activeProfile != profile.Name {
		o.history = nil
		o.sessionID = ""
	}
	o.activeProfile = profile.Name
	o.turnActive = true
	ctx, cancel := context.WithCancel(context.Background())
	o.cancelTurn = cancel
	o.cancelled.Store(false)

	if len(o.history) == 0 && profile.SystemPrompt != "" {
		o.history = append(o.history, model.NewSystemMessage(profile.SystemPrompt))
	}
	o.history = append(o.history, model.NewUserMessage(userText))
	o.mu.Unlock()

	events := make(chan model.AgentEvent, 16)
	go func() {
		defer func() {
			cancel()
			o.mu.Lock()
			o.turnActive = false
			o.cancelTurn = nil
			o.pending = nil
			o.mu.Unlock()
			close(events)
		}()
		o.runTurn(ctx, profile, events)
	}()
	return events, nil
}

// runTurn drives request/stream/approve/execute cycles until the model
// stops calling tools, an error aborts the turn, or the user cancels.
func (o *Orchestrator) runTurn(ctx context.Context, profile model.Profile, events chan<- model.AgentEvent) {
	for {
		if o.cancelled.Load() {
			events <- model.AgentEvent{Type: model.EventTurnComplete}
			return
		}

		toolCatalog := o.buildCatalog()

		req := llm.Request{
			Endpoint: profile.Endpoint,
			Model:    profile.Model,
			Messages: o.GetHistory(),
			Tools:    toolCatalog,
		}

		var content string
		var acc llm.Accumulator

		for ev := range o.client.StreamChat(ctx, req) {
			switch ev.Type {
			case llm.ContentDelta:
				if o.cancelled.Load() {
					continue
				}
				content += ev.Content
				events <- model.AgentEvent{Type: model.EventContentDelta, Content: ev.Content}
			case llm.ToolCallDelta:
				acc.Apply(ev)
			case llm.StreamError:
				if o.cancelled.Load() {
					// A cancelled in-flight request surfaces as a transport
					// error; the turn just ends without committing anything.
					events <- model.AgentEvent{Type: model.EventTurnComplete}
					return
				}
				// History stays exactly as it was before this model call.
				events <- model.AgentEvent{Type: model.EventTurnError, Err: ev.Err.Error()}
				return
			case llm.StreamComplete:
			}
		}

		if o.cancelled.Load() {
			events <- model.AgentEvent{Type: model.EventTurnComplete}
			return
		}

		calls := acc.Calls()
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}

		if len(calls) == 0 {
			o.appendMessage(model.NewAssistantMessage(content, nil))
			o.persist(profile)
			events <- model.AgentEvent{Type: model.EventTurnComplete}
			return
		}

		// The stream's own completion is not the turn's completion: commit
		// the assistant message with its tool calls and work through them
		// in the model's order.
		o.appendMessage(model.NewAssistantMessage(content, calls))

		cancelledMidCalls := false
		for _, call := range calls {
			if o.cancelled.Load() {
				cancelledMidCalls = true
				break
			}

			decision := o.awaitApproval(ctx, call, events)
			events <- model.AgentEvent{
				Type:     model.EventApprovalResolved,
				ToolName: call.Name,
				Approved: decision == Approve,
			}

			switch decision {
			case Approve:
				events <- model.AgentEvent{Type: model.EventToolStarted, ToolName: call.Name}
				result := o.dispatch.Dispatch(ctx, call.Name, call.Arguments)
				if result.IsError {
					events <- model.AgentEvent{Type: model.EventToolFailed, ToolName: call.Name, Err: result.Text}
				} else {
					events <- model.AgentEvent{Type: model.EventToolCompleted, ToolName: call.Name}
				}
				o.appendMessage(model.NewToolMessage(result.Text, call.ID))
			case Deny:
				// The protocol requires a tool message for every tool call;
				// a denial still answers the call so the model can react.
				notice := fmt.Sprintf("Error: reason=tool_call_denied; name=%s", call.Name)
				o.appendMessage(model.NewToolMessage(notice, call.ID))
			case Cancel:
				notice := fmt.Sprintf("Error: reason=tool_call_cancelled; name=%s", call.Name)
				o.appendMessage(model.NewToolMessage(notice, call.ID))
				cancelledMidCalls = true
			}
			if cancelledMidCalls {
				break
			}
		}

		if cancelledMidCalls || o.cancelled.Load() {
			o.persist(profile)
			events <- model.AgentEvent{Type: model.EventTurnComplete}
			return
		}

		// Follow-up round-trip so the model reads its tool results.
		o.persist(profile)
	}
}

// awaitApproval publishes the approval request and blocks for the decision.
// Context cancellation resolves as Cancel.
func (o *Orchestrator) awaitApproval(ctx context.Context, call model.ToolCall, events chan<- model.AgentEvent) Decision {
	preview := ""
	if o.toolset.IsEditTool(call.Name) {
		preview = o.toolset.DiffPreview(call.Name, call.Arguments)
	}

	reply := make(chan Decision, 1)
	o.mu.Lock()
	o.pending = &pendingState{
		info:  PendingApproval{ToolCall: call, DiffPreview: preview},
		reply: reply,
	}
	o.mu.Unlock()

	events <- model.AgentEvent{
		Type:        model.EventApprovalRequested,
		ToolName:    call.Name,
		ToolArgs:    call.Arguments,
		DiffPreview: preview,
	}

	var decision Decision
	select {
	case decision = <-reply:
	case <-ctx.Done():
		decision = Cancel
	}
	if o.cancelled.Load() {
		decision = Cancel
	}

	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	return decision
}

// buildCatalog merges builtin, config and external tools fresh for the
// turn. The external snapshot is cached by the server manager.
func (o *Orchestrator) buildCatalog() []model.ToolDefinition {
	builtins := tools.BuiltinDefinitions()

	configTools := make([]model.ToolDefinition, 0, len(o.cfg.Tools))
	for _, t := range o.cfg.Tools {
		configTools = append(configTools, catalog.ConfigToolDefinition(t.Name, t.Description, t.Model, t.SystemPrompt))
	}

	external := o.servers.ListTools()
	byConnection := groupByServer(external)

	merged, warnings := catalog.Resolve(builtins, configTools, byConnection)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[catalog] %s", w)
		}
	}
	return merged
}

// groupByServer splits the external snapshot into per-connection lists,
// preserving both connection order and in-connection order.
func groupByServer(defs []model.ToolDefinition) [][]model.ToolDefinition {
	var order []string
	grouped := make(map[string][]model.ToolDefinition)
	for _, def := range defs {
		if _, ok := grouped[def.Server]; !ok {
			order = append(order, def.Server)
		}
		grouped[def.Server] = append(grouped[def.Server], def)
	}
	out := make([][]model.ToolDefinition, 0, len(order))
	for _, server := range order {
		out = append(out, grouped[server])
	}
	return out
}

func (o *Orchestrator) appendMessage(m model.Message) {
	o.mu.Lock()
	o.history = append(o.history, m)
	o.mu.Unlock()
}

// persist saves the transcript after each committed round-trip. Best
// effort: persistence failures never affect the turn.
func (o *Orchestrator) persist(profile model.Profile) {
	if o.store == nil {
		return
	}

	o.mu.Lock()
	if o.sessionID == "" {
		o.sessionID = uuid.New().String()
	}
	session := &storage.Session{
		ID:       o.sessionID,
		Name:     sessionName(o.history),
		Profile:  profile.Name,
		Model:    profile.Model,
		Messages: model.CopyHistory(o.history),
	}
	o.mu.Unlock()

	if err := o.store.Save(session); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[storage] save failed: %v", err)
	}
}

// sessionName derives a display name from the first user message,
// truncated on a rune boundary.
func sessionName(history []model.Message) string {
	for _, m := range history {
		if m.Role == model.RoleUser {
			name := m.Content
			if len(name) > 64 {
				cut := 64
				for cut > 0 && !utf8.RuneStart(name[cut]) {
					cut--
				}
				name = name[:cut]
			}
			return name
		}
	}
	return "untitled"
}
