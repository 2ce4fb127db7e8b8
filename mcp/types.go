package mcp

import (
	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"lcoder/model"
)

// Connection is one live tool-server subprocess and its connect-time tool
// listing. Tools are queried once at startup and never re-queried.
type Connection struct {
	Name   string
	Client *client.Client
	Tools  []mcptypes.Tool
}

// ConvertTool maps a discovered MCP tool onto the catalog's external
// ToolDefinition shape, carrying the owning server name.
func ConvertTool(server string, tool mcptypes.Tool) model.ToolDefinition {
	params := map[string]any{
		"type":       tool.InputSchema.Type,
		"properties": tool.InputSchema.Properties,
	}
	if len(tool.InputSchema.Required) > 0 {
		params["required"] = tool.InputSchema.Required
	}
	if tool.InputSchema.Defs != nil {
		params["$defs"] = tool.InputSchema.Defs
	}
	return model.ToolDefinition{
		Kind:        model.ToolKindExternal,
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  params,
		Server:      server,
	}
}
