// Package handlers contains the confirmation prompts and the circuit breaker
// that guard tool execution.
package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"stepwise/internal/hook"
)

// prompter asks a yes/no question on a terminal-like stream.
type prompter struct {
	reader *bufio.Reader
	writer io.Writer
	color  bool
}

func newPrompter(r io.Reader, w io.Writer) prompter {
	return prompter{reader: bufio.NewReader(r), writer: w, color: true}
}

func (p prompter) paint(code, s string) string {
	if !p.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// confirm prints the header and detail lines and returns the feedback for
// the answer. Anything but y/yes denies.
func (p prompter) confirm(header string, details []string, denyMsg string) *hook.Feedback {
	fmt.Fprintf(p.writer, "\n%s\n", p.paint("33", "⚠️  "+header))
	for _, d := range details {
		fmt.Fprintf(p.writer, "    %s\n", d)
	}
	fmt.Fprintf(p.writer, "\nAllow? [y/N]: ")

	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return hook.DenyFeedback("no input received")
	}

	switch strings.TrimSpace(strings.ToLower(line)) {
	case "y", "yes":
		fmt.Fprintf(p.writer, "%s\n\n", p.paint("32", "✓ Allowed"))
		return hook.AllowFeedback()
	default:
		fmt.Fprintf(p.writer, "%s\n\n", p.paint("31", "✗ Denied"))
		return hook.DenyFeedback(denyMsg)
	}
}

// BashConfirmHandler prompts user for confirmation before executing bash commands
type BashConfirmHandler struct {
	prompt prompter
}

// NewBashConfirmHandler creates a new bash confirmation handler
func NewBashConfirmHandler() *BashConfirmHandler {
	return NewBashConfirmHandlerWithIO(os.Stdin, os.Stdout)
}

// NewBashConfirmHandlerWithIO creates a handler with custom IO (for testing)
func NewBashConfirmHandlerWithIO(reader io.Reader, writer io.Writer) *BashConfirmHandler {
	return &BashConfirmHandler{prompt: newPrompter(reader, writer)}
}

// WithoutColor disables ANSI colors in the prompt.
func (h *BashConfirmHandler) WithoutColor() *BashConfirmHandler {
	h.prompt.color = false
	return h
}

func (h *BashConfirmHandler) Name() string {
	return "bash_confirm"
}

func (h *BashConfirmHandler) Points() []hook.HookPoint {
	return []hook.HookPoint{hook.BeforeBashCommand}
}

func (h *BashConfirmHandler) Priority() int {
	return 100 // High priority - runs first
}

func (h *BashConfirmHandler) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	command := data.GetString("command")
	if command == "" {
		return hook.AllowFeedback(), nil
	}

	return h.prompt.confirm(
		"Bash command requires confirmation:",
		[]string{h.prompt.paint("1", command)},
		"user denied command execution",
	), nil
}

// ToolConfirmHandler prompts user for confirmation before executing any tool
type ToolConfirmHandler struct {
	prompt    prompter
	toolNames map[string]bool // Only confirm these tools (empty = all)
}

// NewToolConfirmHandler creates a new tool confirmation handler
func NewToolConfirmHandler(tools ...string) *ToolConfirmHandler {
	return NewToolConfirmHandlerWithIO(os.Stdin, os.Stdout, tools...)
}

// NewToolConfirmHandlerWithIO creates a handler with custom IO (for testing)
func NewToolConfirmHandlerWithIO(reader io.Reader, writer io.Writer, tools ...string) *ToolConfirmHandler {
	toolNames := make(map[string]bool)
	for _, t := range tools {
		toolNames[t] = true
	}
	return &ToolConfirmHandler{
		prompt:    newPrompter(reader, writer),
		toolNames: toolNames,
	}
}

// WithoutColor disables ANSI colors in the prompt.
func (h *ToolConfirmHandler) WithoutColor() *ToolConfirmHandler {
	h.prompt.color = false
	return h
}

func (h *ToolConfirmHandler) Name() string {
	return "tool_confirm"
}

func (h *ToolConfirmHandler) Points() []hook.HookPoint {
	return []hook.HookPoint{hook.BeforeToolExecution}
}

func (h *ToolConfirmHandler) Priority() int {
	return 100
}

func (h *ToolConfirmHandler) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	// If specific tools are configured, check if this tool needs confirmation
	if len(h.toolNames) > 0 && !h.toolNames[data.ToolName] {
		return hook.AllowFeedback(), nil
	}

	var details []string
	if params := data.GetString("params"); params != "" {
		details = append(details, "Parameters: "+params)
	}

	return h.prompt.confirm(
		fmt.Sprintf("Tool '%s' requires confirmation:", data.ToolName),
		details,
		"user denied tool execution",
	), nil
}
