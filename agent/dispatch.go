package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"lcoder/config"
	"lcoder/mcp"
	"lcoder/model"
	"lcoder/tools"
)

// SecondaryCaller issues the independent model call backing a
// configuration-defined tool. The response is aggregated, never streamed to
// the caller.
type SecondaryCaller interface {
	Complete(ctx context.Context, endpoint, modelID, systemPrompt, userText string) (string, error)
}

// Dispatcher routes an approved tool call to its handler. Every branch
// returns a result value; the orchestrator never sees a panic or error from
// tool execution.
type Dispatcher struct {
	toolset   *tools.Toolset
	cfg       *config.Config
	servers   *mcp.Manager
	secondary SecondaryCaller
}

func NewDispatcher(toolset *tools.Toolset, cfg *config.Config, servers *mcp.Manager) *Dispatcher {
	return &Dispatcher{
		toolset:   toolset,
		cfg:       cfg,
		servers:   servers,
		secondary: &openAICaller{},
	}
}

// Dispatch resolves in fixed order: builtin handler, configuration-defined
// delegate, then the tool-server manager (which itself reports unknown
// names as error results).
func (d *Dispatcher) Dispatch(ctx context.Context, name, rawArgs string) model.ToolResult {
	if d.toolset.IsBuiltin(name) {
		return d.toolset.Call(name, rawArgs)
	}

	if tc, ok := d.findConfigTool(name); ok {
		return d.callConfigTool(ctx, tc, rawArgs)
	}

	return d.servers.CallTool(ctx, name, rawArgs)
}

func (d *Dispatcher) findConfigTool(name string) (config.ToolConfig, bool) {
	for _, t := range d.cfg.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return config.ToolConfig{}, false
}

func (d *Dispatcher) callConfigTool(ctx context.Context, tc config.ToolConfig, rawArgs string) model.ToolResult {
	var args struct {
		Text string `json:"text"`
	}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return model.ErrorResult(fmt.Sprintf("reason=invalid_arguments; name=%s; message=%q", tc.Name, err.Error()))
		}
	}
	if args.Text == "" {
		return model.ErrorResult(fmt.Sprintf("reason=missing_argument; name=%s; key=text", tc.Name))
	}

	modelCfg, ok := d.cfg.GetModelConfig(tc.Model)
	if !ok {
		return model.ErrorResult(fmt.Sprintf("reason=unknown_model_key; name=%s; key=%s", tc.Name, tc.Model))
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[tool] %s -> %s (%s)", tc.Name, modelCfg.ModelID, modelCfg.Endpoint)
	}

	text, err := d.secondary.Complete(ctx, modelCfg.Endpoint, modelCfg.ModelID, tc.SystemPrompt, args.Text)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=config_tool_error; name=%s; message=%q", tc.Name, err.Error()))
	}
	return model.ToolResult{Text: text}
}

// apiKeyOrPlaceholder keeps the SDK happy against local endpoints that do
// not check credentials.
func apiKeyOrPlaceholder() string {
	if k := os.Getenv("LCODER_API_KEY"); k != "" {
		return k
	}
	return "unused"
}

// openAICaller aggregates a streamed completion through the official SDK.
type openAICaller struct{}

func (openAICaller) Complete(ctx context.Context, endpoint, modelID, systemPrompt, userText string) (string, error) {
	client := openai.NewClient(
		option.WithBaseURL(endpoint),
		option.WithAPIKey(apiKeyOrPlaceholder()),
	)

	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userText))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(modelID),
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		acc.AddChunk(stream.Current())
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("secondary model call failed: %w", err)
	}

	if len(acc.Choices) == 0 {
		return "", nil
	}
	return acc.Choices[0].Message.Content, nil
}
