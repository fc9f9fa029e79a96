package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"stepwise/internal/tool"
)

type WriteTool struct{}

func NewWriteTool() *WriteTool {
	return &WriteTool{}
}

func (t *WriteTool) Name() string {
	return "write"
}

func (t *WriteTool) Description() string {
	return "Write content to a file (creates or overwrites)"
}

func (t *WriteTool) BestPractices() string {
	return ""
}

// Mutates reports that writes change the filesystem.
func (t *WriteTool) Mutates() bool {
	return true
}

func (t *WriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write to the file",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var p struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid parameters: %v", err),
		}, nil
	}
	if p.FilePath == "" {
		return &tool.Result{Success: false, Error: "file_path cannot be empty"}, nil
	}

	// Ensure parent directory exists
	dir := filepath.Dir(p.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to create directory: %v", err),
		}, nil
	}

	// Write to a sibling temp file and rename it into place.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.FilePath)+".*")
	if err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to write file: %v", err),
		}, nil
	}
	_, werr := tmp.WriteString(p.Content)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp.Name(), 0644)
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), p.FilePath)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("failed to write file: %v", werr),
		}, nil
	}

	return &tool.Result{
		Success: true,
		Output:  fmt.Sprintf("Successfully wrote %d bytes to %s", len(p.Content), p.FilePath),
		Data:    map[string]any{"bytes": len(p.Content), "path": p.FilePath},
	}, nil
}
