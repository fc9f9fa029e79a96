// Package anthropic adapts the Anthropic Messages API to the llm.Client
// reasoning provider interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"stepwise/internal/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

type Client struct {
	client *anthropic.Client
	model  string
}

// NewClient creates an Anthropic client. An empty baseURL keeps the SDK default.
// The SDK's own retries are off; Think retries under its retry.Policy.
func NewClient(apiKey, model string, baseURL ...string) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if len(baseURL) > 0 && baseURL[0] != "" {
		opts = append(opts, option.WithBaseURL(baseURL[0]))
	}

	client := anthropic.NewClient(opts...)
	return &Client{
		client: &client,
		model:  model,
	}
}

func (c *Client) Provider() string {
	return providerName
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if system := buildSystem(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	return convertResponse(resp)
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.ErrorFromStatusCode(providerName, apiErr.StatusCode, "api error", err)
	}
	return &llm.RetryableError{Provider: providerName, Message: "request failed", Cause: err}
}

func convertResponse(resp *anthropic.Message) (*llm.ChatResponse, error) {
	msg := llm.Message{Role: llm.RoleAssistant}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if len(toolBlock.Input) > 0 {
				raw, err := json.Marshal(toolBlock.Input)
				if err != nil {
					return nil, llm.Malformed(providerName, "tool_use %s input: %v", toolBlock.ID, err)
				}
				args = string(raw)
			}
			msg.ToolCalls = append(msg.ToolCalls, &llm.ToolCall{
				ID:   toolBlock.ID,
				Type: "function",
				Function: &llm.FunctionCall{
					Name:      toolBlock.Name,
					Arguments: args,
				},
			})
		}
	}

	stop := llm.StopReasonStop
	switch {
	case len(msg.ToolCalls) > 0:
		stop = llm.StopReasonToolCalls
	case resp.StopReason == anthropic.StopReasonMaxTokens:
		stop = llm.StopReasonLength
	}

	return &llm.ChatResponse{
		Message:    msg,
		StopReason: stop,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// buildSystem collects system messages; the Messages API takes them separately.
func buildSystem(msgs []llm.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Role == llm.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// buildMessages converts memory into alternating user/assistant turns. Tool
// results are carried as tool_result blocks inside a user turn; consecutive
// results are merged into one turn.
func buildMessages(msgs []llm.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		case llm.RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if args := tc.Arguments(); args != "" {
					if err := json.Unmarshal([]byte(args), &input); err != nil {
						input = map[string]any{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name()))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flushResults()
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	flushResults()

	return out
}

func buildTools(tools []*llm.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := t.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				schema.Properties = properties
			}
			schema.Required = requiredFields(params["required"])
		}

		union := anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if union.OfTool != nil && t.Function.Description != "" {
			union.OfTool.Description = anthropic.String(t.Function.Description)
		}
		out = append(out, union)
	}
	return out
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
