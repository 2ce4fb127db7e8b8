// Package llm implements the streaming chat-completions client: one POST per
// turn, server-sent-event framing, and granular delta events for the
// orchestrator to reassemble.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"lcoder/config"
	"lcoder/model"
)

// StreamEventType tags the granular events produced while parsing a stream.
type StreamEventType int

const (
	// ContentDelta carries a fragment of assistant text.
	ContentDelta StreamEventType = iota
	// ToolCallDelta carries one incremental tool-call fragment, correlated
	// across frames by Index.
	ToolCallDelta
	// StreamComplete marks normal termination (the [DONE] sentinel or EOF).
	StreamComplete
	// StreamError marks transport or decode failure of the stream itself.
	StreamError
)

// StreamEvent is one value of the lazy, finite, non-restartable event
// sequence produced by StreamChat.
type StreamEvent struct {
	Type    StreamEventType
	Content string

	// Tool-call delta fields. ID and Name may arrive only in the first
	// fragment for an index; Arguments fragments are concatenated by the
	// consumer, never overwritten.
	Index     int
	ID        string
	Name      string
	Arguments string

	Err error
}

// Request describes one streamed chat-completion call.
type Request struct {
	Endpoint string
	Model    string
	Messages []model.Message
	Tools    []model.ToolDefinition

	// ToolChoice is passed through verbatim when set ("auto", "none", ...).
	ToolChoice string
}

// Client issues streaming chat requests against OpenAI-compatible endpoints.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// FormatEndpoint appends the chat-completions path to a base endpoint.
func FormatEndpoint(base string) string {
	return strings.TrimRight(base, "/") + "/chat/completions"
}

// StreamChat issues the request and returns the event channel. The channel
// is closed after a single terminal event (StreamComplete or StreamError).
// Malformed frames are skipped by policy: best-effort streaming keeps going
// on anything that is not valid JSON.
func (c *Client) StreamChat(ctx context.Context, req Request) <-chan StreamEvent {
	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		if err := c.stream(ctx, req, events); err != nil {
			events <- StreamEvent{Type: StreamError, Err: err}
			return
		}
		events <- StreamEvent{Type: StreamComplete}
	}()
	return events
}

func (c *Client) stream(ctx context.Context, req Request, events chan<- StreamEvent) error {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := FormatEndpoint(req.Endpoint)
	if config.DebugLog != nil {
		config.DebugLog.Printf("[llm] POST %s model=%s messages=%d tools=%d", url, req.Model, len(req.Messages), len(req.Tools))
		config.DebugLog.Printf("[llm] request body: %s", body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := apiKey(); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	// bufio.Scanner consumes the body incrementally and only surfaces whole
	// newline-delimited frames, so multi-byte characters straddling a read
	// boundary are reassembled before decoding.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Drop malformed frame, continue stream.
			if config.DebugLog != nil {
				config.DebugLog.Printf("[llm] skipping malformed frame: %.120s", payload)
			}
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			select {
			case events <- StreamEvent{Type: ContentDelta, Content: delta.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, tc := range delta.ToolCalls {
			ev := StreamEvent{
				Type:      ToolCallDelta,
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}

func apiKey() string {
	return os.Getenv("LCODER_API_KEY")
}
