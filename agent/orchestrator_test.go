package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"lcoder/config"
	"lcoder/llm"
	"lcoder/mcp"
	"lcoder/model"
	"lcoder/sandbox"
	"lcoder/tools"
)

// scriptedServer answers successive chat requests with canned SSE bodies.
type scriptedServer struct {
	responses [][]string
	requests  [][]byte
	calls     int
}

func (s *scriptedServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		s.requests = append(s.requests, body)

		idx := s.calls
		s.calls++
		if idx >= len(s.responses) {
			http.Error(w, "no scripted response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range s.responses[idx] {
			w.Write([]byte(frame + "\n\n"))
		}
	}
}

func contentFrame(text string) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"content": text}}},
	})
	return "data: " + string(raw)
}

func toolCallFrame(index int, id, name, args string) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"tool_calls": []map[string]any{{
			"index":    index,
			"id":       id,
			"function": map[string]any{"name": name, "arguments": args},
		}}}}},
	})
	return "data: " + string(raw)
}

func newTestOrchestrator(t *testing.T, endpoint string) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := sandbox.NewRoot(dir)
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}
	cfg := &config.Config{
		WorkingDirectory: root.Dir(),
		Coders: []config.CoderConfig{
			{Name: "test", Endpoint: endpoint, Model: "m"},
			{Name: "prompted", Endpoint: endpoint, Model: "m", SystemPrompt: "Stay terse."},
		},
		Models: map[string]config.ModelConfig{},
	}
	return New(cfg, llm.NewClient(), mcp.NewManager(), tools.NewToolset(root), nil), root.Dir()
}

// resolveEventually answers the pending approval, retrying briefly in case
// the approval event outran the pending-state bookkeeping.
func resolveEventually(t *testing.T, o *Orchestrator, d Decision) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := o.ResolveApproval(d); err == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("approval never accepted")
}

func drainTurn(t *testing.T, o *Orchestrator, events <-chan model.AgentEvent, d Decision) []model.AgentEvent {
	t.Helper()
	var seen []model.AgentEvent
	for ev := range events {
		seen = append(seen, ev)
		if ev.Type == model.EventApprovalRequested {
			resolveEventually(t, o, d)
		}
	}
	return seen
}

func TestTurnWithoutToolCalls(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{contentFrame("Hello "), contentFrame("there."), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "hi")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	seen := drainTurn(t, o, events, Approve)

	content := ""
	sawComplete := false
	for _, ev := range seen {
		switch ev.Type {
		case model.EventContentDelta:
			content += ev.Content
		case model.EventTurnComplete:
			sawComplete = true
		case model.EventTurnError:
			t.Fatalf("turn error: %s", ev.Err)
		}
	}
	if content != "Hello there." {
		t.Errorf("streamed content = %q", content)
	}
	if !sawComplete {
		t.Error("no turn-complete event")
	}

	history := o.GetHistory()
	if len(history) != 2 {
		t.Fatalf("history = %+v, want user+assistant", history)
	}
	if history[0].Role != model.RoleUser || history[1].Role != model.RoleAssistant {
		t.Errorf("history roles = %s, %s", history[0].Role, history[1].Role)
	}
	if history[1].Content != "Hello there." {
		t.Errorf("assistant content = %q", history[1].Content)
	}
}

func TestSystemPromptPrependedOnce(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{contentFrame("one"), "data: [DONE]"},
		{contentFrame("two"), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	for _, text := range []string{"first", "second"} {
		events, err := o.SubmitTurn("prompted", text)
		if err != nil {
			t.Fatalf("SubmitTurn failed: %v", err)
		}
		drainTurn(t, o, events, Approve)
	}

	history := o.GetHistory()
	if len(history) != 5 {
		t.Fatalf("history length = %d, want system+2*(user+assistant)", len(history))
	}
	if history[0].Role != model.RoleSystem || history[0].Content != "Stay terse." {
		t.Errorf("history[0] = %+v", history[0])
	}
	for _, m := range history[1:] {
		if m.Role == model.RoleSystem {
			t.Errorf("system prompt duplicated: %+v", history)
		}
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	args := `{"path":"out.txt","content":"written by tool"}`
	server := &scriptedServer{responses: [][]string{
		{toolCallFrame(0, "call_1", "write_file", args), "data: [DONE]"},
		{contentFrame("File written."), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, dir := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "write a file")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	seen := drainTurn(t, o, events, Approve)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil || string(data) != "written by tool" {
		t.Errorf("tool output file = %q, err %v", data, err)
	}

	var types []model.AgentEventType
	for _, ev := range seen {
		types = append(types, ev.Type)
	}
	wantOrder := []model.AgentEventType{
		model.EventApprovalRequested,
		model.EventApprovalResolved,
		model.EventToolStarted,
		model.EventToolCompleted,
	}
	pos := 0
	for _, ty := range types {
		if pos < len(wantOrder) && ty == wantOrder[pos] {
			pos++
		}
	}
	if pos != len(wantOrder) {
		t.Errorf("event order %v missing sequence %v", types, wantOrder)
	}

	history := o.GetHistory()
	// user, assistant(tool_calls), tool, assistant
	if len(history) != 4 {
		t.Fatalf("history = %+v", history)
	}
	if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant tool calls = %+v", history[1].ToolCalls)
	}
	if !model.IsToolMessage(history[2]) || history[2].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", history[2])
	}
	if history[3].Content != "File written." {
		t.Errorf("final assistant = %+v", history[3])
	}
	if server.calls != 2 {
		t.Errorf("model called %d times, want 2", server.calls)
	}
}

func TestMultipleToolCallsKeepOrder(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{
			toolCallFrame(0, "call_a", "create_directory", `{"path":"one"}`),
			toolCallFrame(1, "call_b", "create_directory", `{"path":"two"}`),
			toolCallFrame(2, "call_c", "create_directory", `{"path":"three"}`),
			"data: [DONE]",
		},
		{contentFrame("done"), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "make dirs")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	drainTurn(t, o, events, Approve)

	history := o.GetHistory()
	// user, assistant(3 calls), 3 tool messages, assistant
	if len(history) != 6 {
		t.Fatalf("history length = %d: %+v", len(history), history)
	}
	if len(history[1].ToolCalls) != 3 {
		t.Fatalf("tool calls = %+v", history[1].ToolCalls)
	}
	wantIDs := []string{"call_a", "call_b", "call_c"}
	for i, id := range wantIDs {
		if history[2+i].ToolCallID != id {
			t.Errorf("tool message %d correlates to %q, want %q", i, history[2+i].ToolCallID, id)
		}
	}
}

func TestDeniedToolCallStillAnswered(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{toolCallFrame(0, "call_1", "write_file", `{"path":"x.txt","content":"nope"}`), "data: [DONE]"},
		{contentFrame("Understood."), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, dir := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "write")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	seen := drainTurn(t, o, events, Deny)

	if _, err := os.Stat(filepath.Join(dir, "x.txt")); !os.IsNotExist(err) {
		t.Error("denied tool still wrote the file")
	}

	for _, ev := range seen {
		if ev.Type == model.EventApprovalResolved && ev.Approved {
			t.Error("approval-resolved reported approved for a denial")
		}
		if ev.Type == model.EventToolStarted {
			t.Error("denied tool was executed")
		}
	}

	history := o.GetHistory()
	if len(history) != 4 {
		t.Fatalf("history = %+v", history)
	}
	if history[2].ToolCallID != "call_1" || !strings.Contains(history[2].Content, "tool_call_denied") {
		t.Errorf("denial tool message = %+v", history[2])
	}
}

func TestTurnErrorLeavesHistoryIntact(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "hello")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	seen := drainTurn(t, o, events, Approve)

	sawError := false
	for _, ev := range seen {
		if ev.Type == model.EventTurnError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("no turn-error event")
	}

	history := o.GetHistory()
	if len(history) != 1 || history[0].Role != model.RoleUser {
		t.Errorf("history after failed turn = %+v", history)
	}

	// The orchestrator accepts a new turn after a failed one.
	if _, err := o.SubmitTurn("test", "retry"); err != nil {
		t.Errorf("SubmitTurn after failure: %v", err)
	}
}

func TestCancelDuringApproval(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{toolCallFrame(0, "call_1", "write_file", `{"path":"x.txt","content":"v"}`), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, dir := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "write")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	var seen []model.AgentEvent
	for ev := range events {
		seen = append(seen, ev)
		if ev.Type == model.EventApprovalRequested {
			o.CancelTurn()
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "x.txt")); !os.IsNotExist(err) {
		t.Error("cancelled tool call still executed")
	}

	history := o.GetHistory()
	// user, assistant(call), cancellation tool message
	if len(history) != 3 {
		t.Fatalf("history = %+v", history)
	}
	if !strings.Contains(history[2].Content, "tool_call_cancelled") {
		t.Errorf("tool message = %+v", history[2])
	}
	// No follow-up model call after cancellation.
	if server.calls != 1 {
		t.Errorf("model called %d times, want 1", server.calls)
	}
}

func TestCancelMidStreamCommitsNothing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(contentFrame("Hello, wor") + "\n\n"))
		w.(http.Flusher).Flush()
		// Hold the stream open until the client gives up.
		<-r.Context().Done()
	}))
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "hi")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	sawComplete := false
	for ev := range events {
		switch ev.Type {
		case model.EventContentDelta:
			o.CancelTurn()
		case model.EventTurnError:
			t.Fatalf("cancellation surfaced as turn-error: %s", ev.Err)
		case model.EventTurnComplete:
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Error("no turn-complete after cancellation")
	}

	// No partial assistant message is committed.
	history := o.GetHistory()
	if len(history) != 1 || history[0].Role != model.RoleUser {
		t.Errorf("history after cancel = %+v", history)
	}
}

func TestRejectsConcurrentTurns(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{toolCallFrame(0, "call_1", "create_directory", `{"path":"d"}`), "data: [DONE]"},
		{contentFrame("ok"), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	events, err := o.SubmitTurn("test", "go")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	// Hold the turn at its approval gate, then try to start another.
	for ev := range events {
		if ev.Type != model.EventApprovalRequested {
			continue
		}
		if _, err := o.SubmitTurn("test", "again"); err == nil {
			t.Error("concurrent SubmitTurn was accepted")
		}
		resolveEventually(t, o, Approve)
	}
}

func TestResetConversation(t *testing.T) {
	server := &scriptedServer{responses: [][]string{
		{contentFrame("hi"), "data: [DONE]"},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	o, _ := newTestOrchestrator(t, ts.URL)
	events, _ := o.SubmitTurn("test", "hello")
	drainTurn(t, o, events, Approve)

	if err := o.ResetConversation(); err != nil {
		t.Fatalf("ResetConversation failed: %v", err)
	}
	if got := o.GetHistory(); len(got) != 0 {
		t.Errorf("history after reset = %+v", got)
	}
}

func TestUnknownProfile(t *testing.T) {
	o, _ := newTestOrchestrator(t, "http://127.0.0.1:1")
	if _, err := o.SubmitTurn("ghost", "hi"); err == nil {
		t.Fatal("SubmitTurn accepted unknown profile")
	}
}

func TestSessionNameTruncatesOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name    string
		history []model.Message
		want    string
	}{
		{
			name:    "short name kept whole",
			history: []model.Message{model.NewUserMessage("fix the parser")},
			want:    "fix the parser",
		},
		{
			name:    "no user message",
			history: []model.Message{model.NewSystemMessage("sys")},
			want:    "untitled",
		},
		{
			// 62 ASCII bytes followed by a 3-byte rune: a byte-level cut at
			// 64 would land inside it.
			name:    "multibyte rune straddling the limit",
			history: []model.Message{model.NewUserMessage(strings.Repeat("a", 62) + "日本語")},
			want:    strings.Repeat("a", 62),
		},
		{
			name:    "multibyte content truncated cleanly",
			history: []model.Message{model.NewUserMessage(strings.Repeat("木", 40))},
			want:    strings.Repeat("木", 21),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sessionName(tt.history)
			if got != tt.want {
				t.Errorf("sessionName() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("sessionName() produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestCatalogGrouping(t *testing.T) {
	defs := []model.ToolDefinition{
		{Kind: model.ToolKindExternal, Name: "a1", Server: "alpha"},
		{Kind: model.ToolKindExternal, Name: "b1", Server: "beta"},
		{Kind: model.ToolKindExternal, Name: "a2", Server: "alpha"},
	}
	grouped := groupByServer(defs)
	if len(grouped) != 2 {
		t.Fatalf("groups = %v", grouped)
	}
	if len(grouped[0]) != 2 || grouped[0][0].Name != "a1" || grouped[0][1].Name != "a2" {
		t.Errorf("alpha group = %v", grouped[0])
	}
	if len(grouped[1]) != 1 || grouped[1][0].Name != "b1" {
		t.Errorf("beta group = %v", grouped[1])
	}
}

