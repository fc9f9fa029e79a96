package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"stepwise/internal/tool"
)

const maxFilesPerRead = 8

type ReadTool struct{}

func NewReadTool() *ReadTool {
	return &ReadTool{}
}

func (t *ReadTool) Name() string {
	return "read"
}

func (t *ReadTool) Description() string {
	return "Read the contents of one or more files, optionally limited to a line range"
}

func (t *ReadTool) BestPractices() string {
	return `**read**: batch related files into one call (up to 8) and use from/to for large files instead of reading them whole.`
}

func (t *ReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"files": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": maxFilesPerRead,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path": map[string]any{
							"type":        "string",
							"description": "Path to the file to read",
						},
						"from": map[string]any{
							"type":        "integer",
							"description": "First line to read, 1-based (default: 1)",
						},
						"to": map[string]any{
							"type":        "integer",
							"description": "Last line to read, inclusive (default: end of file)",
						},
					},
					"required": []string{"file_path"},
				},
			},
		},
		"required": []string{"files"},
	}
}

type fileRequest struct {
	FilePath string `json:"file_path"`
	From     int    `json:"from"`
	To       int    `json:"to"`
}

func (r fileRequest) hasRange() bool {
	return r.From > 0 || r.To > 0
}

func (r fileRequest) rangeLabel() string {
	from := r.From
	if from == 0 {
		from = 1
	}
	if r.To == 0 {
		return fmt.Sprintf("lines %d-end", from)
	}
	return fmt.Sprintf("lines %d-%d", from, r.To)
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var p struct {
		Files []fileRequest `json:"files"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid parameters: %v", err),
		}, nil
	}

	switch {
	case len(p.Files) == 0:
		return &tool.Result{Success: false, Error: "at least one file is required"}, nil
	case len(p.Files) > maxFilesPerRead:
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("too many files: %d (max %d per call)", len(p.Files), maxFilesPerRead),
		}, nil
	}

	for i, f := range p.Files {
		if f.FilePath == "" {
			return &tool.Result{Success: false, Error: fmt.Sprintf("files[%d]: file_path cannot be empty", i)}, nil
		}
		if f.From < 0 || f.To < 0 || (f.To > 0 && f.From > f.To) {
			return &tool.Result{Success: false, Error: fmt.Sprintf("%s: invalid line range %d-%d", f.FilePath, f.From, f.To)}, nil
		}
	}

	var out strings.Builder
	totalLines := 0
	for i, f := range p.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, lines, err := readLines(f)
		if err != nil {
			return &tool.Result{Success: false, Error: err.Error()}, nil
		}
		totalLines += lines

		switch {
		case len(p.Files) > 1:
			header := fmt.Sprintf("File %d/%d: %s", i+1, len(p.Files), f.FilePath)
			if f.hasRange() {
				header += " (" + f.rangeLabel() + ")"
			}
			if i > 0 {
				out.WriteString("\n")
			}
			fmt.Fprintf(&out, "==> %s <==\n", header)
		case f.hasRange():
			fmt.Fprintf(&out, "==> %s (%s) <==\n", f.FilePath, f.rangeLabel())
		}
		out.WriteString(content)
	}

	return &tool.Result{
		Success: true,
		Output:  out.String(),
		Data: map[string]any{
			"file_count":  len(p.Files),
			"total_lines": totalLines,
		},
	}, nil
}

// readLines returns the requested part of a file and its line count.
func readLines(f fileRequest) (string, int, error) {
	file, err := os.Open(f.FilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	if !f.hasRange() {
		data, err := io.ReadAll(file)
		if err != nil {
			return "", 0, fmt.Errorf("failed to read file: %v", err)
		}
		return string(data), strings.Count(string(data), "\n"), nil
	}

	from := f.From
	if from == 0 {
		from = 1
	}

	var b strings.Builder
	count := 0
	lineNum := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNum++
		if lineNum < from {
			continue
		}
		if f.To > 0 && lineNum > f.To {
			break
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("failed to read file: %v", err)
	}
	if count == 0 {
		return "", 0, fmt.Errorf("%s: no lines in specified range (file has %d lines)", f.FilePath, lineNum)
	}
	return b.String(), count, nil
}
