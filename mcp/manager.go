// Package mcp supervises the external tool-server subprocesses. Each
// configured server gets one long-lived stdio connection; a connection that
// fails to start only costs its own tools, never the others.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"lcoder/config"
	"lcoder/model"
)

// Manager owns the tool-server connections and the immutable tool catalog
// snapshot taken once after startup. The snapshot is safe for concurrent
// readers; it is replaced only by Start and Stop.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	snapshot    []model.ToolDefinition
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
	}
}

// Start launches one connection per config concurrently. Individual
// failures are logged and skipped; after all attempts settle the tool
// snapshot is assembled from the live connections in configuration order.
func (m *Manager) Start(ctx context.Context, configs []config.ServerConfig) {
	var wg sync.WaitGroup
	results := make([]*Connection, len(configs))

	for i, cfg := range configs {
		wg.Add(1)
		go func(i int, cfg config.ServerConfig) {
			defer wg.Done()
			conn, err := startConnection(ctx, cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to start tool server %s: %v\n", cfg.Name, err)
				if config.DebugLog != nil {
					config.DebugLog.Printf("[mcp] start %s failed: %v", cfg.Name, err)
				}
				return
			}
			results[i] = conn
		}(i, cfg)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range results {
		if conn == nil {
			continue
		}
		m.connections[conn.Name] = conn
		for _, tool := range conn.Tools {
			m.snapshot = append(m.snapshot, ConvertTool(conn.Name, tool))
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[mcp] server %s connected with %d tools", conn.Name, len(conn.Tools))
		}
	}
}

func startConnection(ctx context.Context, cfg config.ServerConfig) (*Connection, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.Command, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "lcoder",
				Version: "1.0.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("listTools failed: %w", err)
	}

	return &Connection{
		Name:   cfg.Name,
		Client: mcpClient,
		Tools:  toolsResult.Tools,
	}, nil
}

// ListTools returns the connect-time catalog snapshot. Connections are not
// re-queried.
func (m *Manager) ListTools() []model.ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ToolDefinition(nil), m.snapshot...)
}

// CallTool dispatches a call to the owning connection. Missing tools, dead
// connections and server-side failures all come back as error-flagged
// results so the orchestrator can fold them into the conversation.
func (m *Manager) CallTool(ctx context.Context, name, rawArgs string) model.ToolResult {
	m.mu.RLock()
	var server string
	for _, def := range m.snapshot {
		if def.Name == name {
			server = def.Server
			break
		}
	}
	conn := m.connections[server]
	m.mu.RUnlock()

	if server == "" {
		return model.ErrorResult(fmt.Sprintf("reason=tool_not_found; name=%s", name))
	}
	if conn == nil {
		return model.ErrorResult(fmt.Sprintf("reason=server_unavailable; name=%s; server=%s", name, server))
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return model.ErrorResult(fmt.Sprintf("reason=invalid_arguments; name=%s; message=%q", name, err.Error()))
		}
	}

	result, err := conn.Client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=server_call_failed; name=%s; server=%s; message=%q", name, server, err.Error()))
	}

	return model.ToolResult{Text: resultText(result), IsError: result.IsError}
}

// resultText flattens the MCP content list, preferring text items and
// falling back to a JSON rendering for anything else.
func resultText(result *mcptypes.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "Tool executed successfully (no output)"
	}

	var texts []string
	for _, item := range result.Content {
		switch c := item.(type) {
		case mcptypes.TextContent:
			texts = append(texts, c.Text)
		case *mcptypes.TextContent:
			texts = append(texts, c.Text)
		}
	}
	if len(texts) > 0 {
		out := texts[0]
		for _, t := range texts[1:] {
			out += "\n" + t
		}
		return out
	}

	raw, err := json.Marshal(result.Content)
	if err != nil {
		return fmt.Sprintf("Tool result (marshal error): %v", err)
	}
	return string(raw)
}

// Stop closes every live connection, tolerating individual close failures,
// and clears the snapshot.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	connections := m.connections
	m.connections = make(map[string]*Connection)
	m.snapshot = nil
	m.mu.Unlock()

	var wg sync.WaitGroup
	for name, conn := range connections {
		wg.Add(1)
		go func(name string, conn *Connection) {
			defer wg.Done()
			closeDone := make(chan error, 1)
			go func() { closeDone <- conn.Client.Close() }()
			select {
			case err := <-closeDone:
				if err != nil && config.DebugLog != nil {
					config.DebugLog.Printf("[mcp] close %s failed: %v", name, err)
				}
			case <-time.After(2 * time.Second):
				if config.DebugLog != nil {
					config.DebugLog.Printf("[mcp] close %s timed out", name)
				}
			case <-ctx.Done():
			}
		}(name, conn)
	}
	wg.Wait()
}
