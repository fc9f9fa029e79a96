package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"stepwise/internal/hook"
	"stepwise/internal/tool"
)

const (
	defaultBashTimeout = 120 * time.Second
	bashNoOutput       = "(Command executed successfully with no output)"
)

type BashTool struct {
	dir string
}

func NewBashTool() *BashTool {
	return &BashTool{}
}

// WithDir sets the working directory commands run in.
func (t *BashTool) WithDir(dir string) *BashTool {
	t.dir = dir
	return t
}

func (t *BashTool) Name() string {
	return "bash"
}

func (t *BashTool) Description() string {
	return "Execute a bash command and return its combined stdout and stderr"
}

func (t *BashTool) BestPractices() string {
	return ""
}

// Mutates reports that shell commands may change the environment.
func (t *BashTool) Mutates() bool {
	return true
}

func (t *BashTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The bash command to execute",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Timeout in milliseconds (default: 120000)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var p struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		return &tool.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid parameters: %v", err),
		}, nil
	}
	if strings.TrimSpace(p.Command) == "" {
		return &tool.Result{Success: false, Error: "command cannot be empty"}, nil
	}

	if manager := hook.ManagerFromContext(ctx); manager != nil {
		data := hook.NewHookData(hook.BeforeBashCommand, t.Name()).Set("command", p.Command)
		feedback, err := manager.Trigger(ctx, data)
		if err != nil {
			return &tool.Result{Success: false, Error: fmt.Sprintf("hook error: %v", err)}, nil
		}
		if !feedback.Allow {
			return &tool.Result{Success: false, Error: "denied: " + feedback.Message}, nil
		}
	}

	timeout := defaultBashTimeout
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "bash", "-c", p.Command)
	cmd.Dir = t.dir
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()

	if manager := hook.ManagerFromContext(ctx); manager != nil {
		manager.Notify(ctx, hook.NewHookData(hook.AfterBashCommand, t.Name()).
			Set("command", p.Command).
			Set("duration", time.Since(start)).
			Set("failed", err != nil))
	}

	if err != nil {
		msg := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("command timed out after %s", timeout)
		}
		if out := strings.TrimRight(string(output), "\n"); out != "" {
			msg += "\n" + out
		}
		return &tool.Result{
			Success: false,
			Error:   msg,
			Data:    map[string]any{"exit_code": exitCode(err)},
		}, nil
	}

	out := string(output)
	if out == "" {
		out = bashNoOutput
	}

	return &tool.Result{
		Success: true,
		Output:  out,
		Data:    map[string]any{"exit_code": 0},
	}, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
