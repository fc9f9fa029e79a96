package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stepwise/internal/tool"
)

// TerminateName is the name of the tool that ends a run.
const TerminateName = "terminate"

// TerminateTool lets the model end the run explicitly with a final answer.
type TerminateTool struct{}

func NewTerminateTool() *TerminateTool {
	return &TerminateTool{}
}

func (t *TerminateTool) Name() string {
	return TerminateName
}

func (t *TerminateTool) Description() string {
	return "Finish the task. Call this once the request is fully handled, passing the final answer for the user."
}

func (t *TerminateTool) BestPractices() string {
	return ""
}

func (t *TerminateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "Final answer or summary for the user",
			},
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{"success", "failure"},
				"description": "Whether the task was completed (default: success)",
			},
		},
		"required": []string{"answer"},
	}
}

func (t *TerminateTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var p struct {
		Answer string `json:"answer"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid parameters: %v", err),
		}, nil
	}
	if strings.TrimSpace(p.Answer) == "" {
		return &tool.Result{Success: false, Error: "answer cannot be empty"}, nil
	}
	if p.Status == "" {
		p.Status = "success"
	}

	return &tool.Result{
		Success:  true,
		Output:   p.Answer,
		Terminal: true,
		Data:     map[string]any{"status": p.Status},
	}, nil
}
