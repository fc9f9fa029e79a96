package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"stepwise/internal/tool"
)

// ToolAdapter exposes an MCP tool through the tool.Tool interface
type ToolAdapter struct {
	client         *Client
	mcpTool        *mcp.Tool
	namespacedName string // e.g., "filesystem_read_file"
}

// NewToolAdapter creates an adapter for an MCP tool
func NewToolAdapter(client *Client, mcpTool *mcp.Tool) *ToolAdapter {
	return &ToolAdapter{
		client:         client,
		mcpTool:        mcpTool,
		namespacedName: fmt.Sprintf("%s_%s", client.Name(), mcpTool.Name),
	}
}

// Name returns the namespaced tool name (server_tool)
func (a *ToolAdapter) Name() string {
	return a.namespacedName
}

func (a *ToolAdapter) Description() string {
	desc := a.mcpTool.Description
	if desc == "" {
		desc = fmt.Sprintf("MCP tool from %s server", a.client.Name())
	}
	return fmt.Sprintf("%s\n\n[MCP Server: %s]", desc, a.client.Name())
}

func (a *ToolAdapter) BestPractices() string {
	return ""
}

// Mutates is false only for tools the server annotates as read-only.
func (a *ToolAdapter) Mutates() bool {
	ann := a.mcpTool.Annotations
	return ann == nil || !ann.ReadOnlyHint
}

// Parameters returns the MCP tool's input schema as a plain map
func (a *ToolAdapter) Parameters() map[string]any {
	empty := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if a.mcpTool.InputSchema == nil {
		return empty
	}
	if schema, ok := a.mcpTool.InputSchema.(map[string]any); ok {
		return schema
	}

	schemaBytes, err := json.Marshal(a.mcpTool.InputSchema)
	if err != nil {
		return empty
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return empty
	}
	return schema
}

// Execute forwards already validated arguments to the MCP server
func (a *ToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	args := map[string]any{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return &tool.Result{
				Success: false,
				Error:   fmt.Sprintf("invalid parameters: %v", err),
			}, nil
		}
	}

	result, err := a.client.CallTool(ctx, a.mcpTool.Name, args)
	if err != nil {
		return nil, fmt.Errorf("MCP tool execution failed: %w", err)
	}

	if result.IsError {
		return &tool.Result{
			Success: false,
			Error:   formatMCPError(result),
		}, nil
	}

	return &tool.Result{
		Success: true,
		Output:  formatMCPContent(result.Content),
		Data: map[string]any{
			"mcp_server": a.client.Name(),
			"mcp_tool":   a.mcpTool.Name,
		},
	}, nil
}

// formatMCPContent converts MCP content array to string
func formatMCPContent(content []mcp.Content) string {
	var parts []string

	for _, item := range content {
		switch c := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[Audio: %s]", c.MIMEType))
		default:
			data, err := json.Marshal(item)
			if err != nil {
				parts = append(parts, fmt.Sprintf("[Unknown content type: %T]", item))
			} else {
				parts = append(parts, string(data))
			}
		}
	}

	return strings.Join(parts, "\n")
}

// formatMCPError extracts error message from MCP result
func formatMCPError(result *mcp.CallToolResult) string {
	if len(result.Content) > 0 {
		return formatMCPContent(result.Content)
	}
	return "MCP tool returned an error"
}
