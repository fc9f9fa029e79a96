package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"stepwise/internal/tool"
)

type GlobTool struct{}

func NewGlobTool() *GlobTool {
	return &GlobTool{}
}

func (t *GlobTool) Name() string {
	return "glob"
}

func (t *GlobTool) Description() string {
	return "List files whose path under a base directory matches a glob. " +
		"** spans any number of directories; hidden directories are skipped."
}

func (t *GlobTool) BestPractices() string {
	return ""
}

func (t *GlobTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Slash-separated glob relative to path (e.g. '*.go', 'src/**/*.ts')",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Base directory (default: current directory)",
			},
		},
		"required": []string{"pattern"},
	}
}

type globQuery struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var q globQuery
	if err := json.Unmarshal(params, &q); err != nil {
		return &tool.Result{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
	}
	if q.Pattern == "" {
		return &tool.Result{Success: false, Error: "pattern cannot be empty"}, nil
	}

	base := q.Path
	if base == "" {
		base = "."
	}

	matches, err := glob(ctx, base, q.Pattern)
	if err != nil {
		return &tool.Result{Success: false, Error: fmt.Sprintf("glob failed: %v", err)}, nil
	}

	if len(matches) == 0 {
		return &tool.Result{
			Success: true,
			Output:  "No files found",
			Data:    map[string]any{"count": 0, "files": []string{}},
		}, nil
	}

	sort.Strings(matches)
	return &tool.Result{
		Success: true,
		Output:  strings.Join(matches, "\n"),
		Data:    map[string]any{"count": len(matches), "files": matches},
	}, nil
}

// glob returns the files under base whose relative path matches pattern.
// Without a ** segment the walk never descends deeper than the pattern.
func glob(ctx context.Context, base, pattern string) ([]string, error) {
	segments, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}

	depth := 0
	if !slices.Contains(segments, "**") {
		depth = len(segments)
	}

	var matches []string
	err = walkFiles(ctx, base, depth, func(path, rel string) error {
		if matchSegments(segments, strings.Split(rel, "/")) {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}
