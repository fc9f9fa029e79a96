package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"stepwise/internal/tool"
)

// sniffLen is how much of a file is inspected for NUL bytes before it is
// treated as binary and skipped.
const sniffLen = 8000

type GrepTool struct{}

func NewGrepTool() *GrepTool {
	return &GrepTool{}
}

func (t *GrepTool) Name() string {
	return "grep"
}

func (t *GrepTool) Description() string {
	return "Search file contents with a regular expression. Directories are searched recursively, " +
		"skipping hidden directories and binary files. Each match is reported as path:line:text."
}

func (t *GrepTool) BestPractices() string {
	return `**grep**: narrow searches with include (e.g. "*.go" or "internal/**/*.go"); prefer grep over reading whole directories with read.`
}

func (t *GrepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression (RE2 syntax) to search for",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory to search (default: current directory)",
			},
			"include": map[string]any{
				"type":        "string",
				"description": "Only search files matching this glob. Without a slash it matches file names; with one it matches paths relative to path, where ** spans directories",
			},
			"case_insensitive": map[string]any{
				"type":        "boolean",
				"description": "Ignore case (default: false)",
			},
		},
		"required": []string{"pattern"},
	}
}

type grepQuery struct {
	Pattern         string `json:"pattern"`
	Path            string `json:"path"`
	Include         string `json:"include"`
	CaseInsensitive bool   `json:"case_insensitive"`
}

// includes reports whether a file at rel passes the include filter.
func includes(filter []string, rel string) bool {
	if len(filter) == 1 {
		return matchSegments(filter, []string{rel[strings.LastIndex(rel, "/")+1:]})
	}
	return matchSegments(filter, strings.Split(rel, "/"))
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var q grepQuery
	if err := json.Unmarshal(params, &q); err != nil {
		return &tool.Result{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
	}

	expr := q.Pattern
	if q.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return &tool.Result{Success: false, Error: fmt.Sprintf("invalid regex pattern: %v", err)}, nil
	}

	var filter []string
	if q.Include != "" {
		if filter, err = splitPattern(q.Include); err != nil {
			return &tool.Result{Success: false, Error: fmt.Sprintf("invalid include pattern: %v", err)}, nil
		}
	}

	root := q.Path
	if root == "" {
		root = "."
	}
	info, err := os.Stat(root)
	if err != nil {
		return &tool.Result{Success: false, Error: fmt.Sprintf("path not found: %v", err)}, nil
	}

	var lines []string
	files := 0
	collect := func(path string) {
		found := searchFile(path, re)
		if len(found) > 0 {
			files++
			lines = append(lines, found...)
		}
	}

	if info.IsDir() {
		err = walkFiles(ctx, root, 0, func(path, rel string) error {
			if filter == nil || includes(filter, rel) {
				collect(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		collect(root)
	}

	if len(lines) == 0 {
		return &tool.Result{
			Success: true,
			Output:  "No matches found",
			Data:    map[string]any{"count": 0, "files": 0},
		}, nil
	}

	return &tool.Result{
		Success: true,
		Output:  strings.Join(lines, "\n"),
		Data:    map[string]any{"count": len(lines), "files": files},
	}, nil
}

// searchFile returns the matching lines of a text file as path:line:text.
// Binary and unreadable files yield nothing.
func searchFile(path string, re *regexp.Regexp) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, sniffLen)
	head, _ := r.Peek(sniffLen)
	if bytes.IndexByte(head, 0) >= 0 {
		return nil
	}

	var found []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		if line := scanner.Text(); re.MatchString(line) {
			found = append(found, fmt.Sprintf("%s:%d:%s", path, n, line))
		}
	}
	return found
}
