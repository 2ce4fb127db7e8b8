// lcoder is an interactive coding agent for OpenAI-compatible endpoints:
// it streams model output, proposes tool calls for approval, executes them
// inside a sandboxed working directory, and feeds results back to the model.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"lcoder/agent"
	"lcoder/config"
	"lcoder/llm"
	"lcoder/mcp"
	"lcoder/model"
	"lcoder/sandbox"
	"lcoder/storage"
	"lcoder/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := config.EnsureDir(cfg.DataDirectory); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	config.InitDebugLog(cfg.DataDirectory)

	profiles := cfg.Profiles()
	if len(profiles) == 0 {
		return fmt.Errorf("no coder profiles configured; add a [[coders]] entry to %s", config.ConfigFilePath())
	}

	root, err := sandbox.NewRoot(cfg.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	toolset := tools.NewToolset(root)

	store, err := storage.OpenSessionStore(cfg.DataDirectory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: session persistence disabled: %v\n", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	servers := mcp.NewManager()
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	servers.Start(startCtx, cfg.Servers)
	cancelStart()
	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
		servers.Stop(stopCtx)
		cancelStop()
	}()

	orchestrator := agent.New(cfg, llm.NewClient(), servers, toolset, store)

	fmt.Printf("lcoder — working directory %s\n", cfg.WorkingDirectory)
	fmt.Println("Commands: /coders, /coder <name>, /reset, /sessions, /search <text>, /quit")

	active := profiles[0].Name
	fmt.Printf("Active coder: %s\n", active)

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !reader.Scan() {
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(line, orchestrator, store, &active)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := runOneTurn(orchestrator, reader, active, line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func handleCommand(line string, orchestrator *agent.Orchestrator, store *storage.SessionStore, active *string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/coders":
		for _, p := range orchestrator.ListProfiles() {
			marker := "  "
			if p.Name == *active {
				marker = "* "
			}
			fmt.Printf("%s%s (%s @ %s)\n", marker, p.Name, p.Model, p.Endpoint)
		}
		return false, nil

	case "/coder":
		if arg == "" {
			return false, fmt.Errorf("usage: /coder <name>")
		}
		for _, p := range orchestrator.ListProfiles() {
			if p.Name == arg {
				*active = arg
				fmt.Printf("Active coder: %s\n", arg)
				return false, nil
			}
		}
		return false, fmt.Errorf("unknown coder %q", arg)

	case "/reset":
		if err := orchestrator.ResetConversation(); err != nil {
			return false, err
		}
		fmt.Println("Conversation cleared.")
		return false, nil

	case "/sessions":
		if store == nil {
			return false, fmt.Errorf("session persistence is disabled")
		}
		sessions, err := store.List()
		if err != nil {
			return false, err
		}
		if len(sessions) == 0 {
			fmt.Println("No saved sessions.")
			return false, nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  [%s] %s\n", s.UpdatedAt.Format("2006-01-02 15:04"), s.ID[:8], s.Profile, s.Name)
		}
		return false, nil

	case "/search":
		if store == nil {
			return false, fmt.Errorf("session persistence is disabled")
		}
		if arg == "" {
			return false, fmt.Errorf("usage: /search <text>")
		}
		hits, err := store.SearchAllSessions(arg)
		if err != nil {
			return false, err
		}
		if len(hits) == 0 {
			fmt.Println("No matches.")
			return false, nil
		}
		for _, h := range hits {
			fmt.Printf("[%s] %s (%s): %s\n", h.SessionID[:8], h.SessionName, h.Role, h.Snippet)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

// runOneTurn drives a single turn on the console, answering approval
// requests from stdin.
func runOneTurn(orchestrator *agent.Orchestrator, reader *bufio.Scanner, profile, text string) error {
	events, err := orchestrator.SubmitTurn(profile, text)
	if err != nil {
		return err
	}

	streaming := false
	endStream := func() {
		if streaming {
			fmt.Println()
			streaming = false
		}
	}

	for ev := range events {
		switch ev.Type {
		case model.EventContentDelta:
			fmt.Print(ev.Content)
			streaming = true

		case model.EventApprovalRequested:
			endStream()
			fmt.Printf("\nTool call: %s\n", ev.ToolName)
			if ev.ToolArgs != "" {
				fmt.Printf("Arguments: %s\n", ev.ToolArgs)
			}
			if ev.DiffPreview != "" {
				fmt.Printf("Preview:\n%s\n", ev.DiffPreview)
			}
			if err := orchestrator.ResolveApproval(promptDecision(reader)); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case model.EventToolStarted:
			fmt.Printf("Running %s...\n", ev.ToolName)

		case model.EventToolFailed:
			fmt.Printf("Tool %s failed: %s\n", ev.ToolName, ev.Err)

		case model.EventTurnError:
			endStream()
			fmt.Fprintf(os.Stderr, "Turn failed: %s\n", ev.Err)

		case model.EventTurnComplete:
			endStream()
		}
	}
	return nil
}

func promptDecision(reader *bufio.Scanner) agent.Decision {
	for {
		fmt.Print("Approve? [y/n/c] ")
		if !reader.Scan() {
			return agent.Cancel
		}
		switch strings.ToLower(strings.TrimSpace(reader.Text())) {
		case "y", "yes":
			return agent.Approve
		case "n", "no":
			return agent.Deny
		case "c", "cancel":
			return agent.Cancel
		}
	}
}
