package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stepwise/internal/agent"
	"stepwise/internal/llm"
	"stepwise/internal/tool"
)

// ANSI Color codes
const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorGray    = "\033[90m"
	ColorBold    = "\033[1m"
)

// maxTranscriptContent bounds how much of each message a transcript shows.
const maxTranscriptContent = 2000

// Renderer writes run results, transcripts and tool listings for the terminal
type Renderer struct {
	writer    io.Writer
	colorMode bool
}

func NewRenderer(w io.Writer) *Renderer {
	if w == nil {
		w = os.Stdout
	}
	return &Renderer{
		writer:    w,
		colorMode: true,
	}
}

func (r *Renderer) SetColorMode(enabled bool) {
	r.colorMode = enabled
}

// WriteLine writes a line to the output
func (r *Renderer) WriteLine(content string) {
	fmt.Fprintln(r.writer, content)
}

// WriteColored writes colored content if color mode is enabled
func (r *Renderer) WriteColored(content, color string) {
	if r.colorMode {
		fmt.Fprintf(r.writer, "%s%s%s", color, content, ColorReset)
	} else {
		fmt.Fprint(r.writer, content)
	}
}

// RenderResult prints the final answer, or the reason a failed run stopped.
func (r *Renderer) RenderResult(out *agent.Output, runErr error) {
	if out == nil {
		return
	}

	r.WriteLine("")
	if out.State == agent.StateFinished {
		if out.Status == "failure" {
			r.WriteColored("Answer (task reported as failed)", ColorBold+ColorYellow)
		} else {
			r.WriteColored("Answer", ColorBold+ColorGreen)
		}
		r.WriteLine("")
		r.WriteLine(out.Result)
	} else {
		r.WriteColored(fmt.Sprintf("Run ended in %s: %s", out.State, out.Reason), ColorBold+ColorRed)
		r.WriteLine("")
		if runErr != nil {
			r.WriteLine(runErr.Error())
		}
		if out.Result != "" {
			r.WriteColored("Last answer: ", ColorGray)
			r.WriteLine(out.Result)
		}
	}

	r.WriteColored(fmt.Sprintf("run %s | %d step(s) | %d tool call(s) | %d message(s) | %s",
		out.RunID, out.Steps, len(out.ToolCalls), len(out.Messages), out.Duration.Round(time.Millisecond)), ColorGray)
	r.WriteLine("")
}

// RenderTranscript prints every message of a run in order.
func (r *Renderer) RenderTranscript(msgs []llm.Message) {
	r.WriteLine("")
	r.WriteColored(fmt.Sprintf("Transcript (%d messages)", len(msgs)), ColorBold)
	r.WriteLine("")

	for i, m := range msgs {
		header := fmt.Sprintf("[%d] %s", i+1, m.Role)
		color := roleColor(m)
		if m.Role == llm.RoleTool {
			header += fmt.Sprintf(" %s (%s)", m.Name, m.ToolCallID)
		}
		r.WriteColored(header, color)
		r.WriteLine("")

		if m.Content != "" {
			r.WriteLine(indent(clip(m.Content, maxTranscriptContent)))
		}
		for _, tc := range m.ToolCalls {
			r.WriteColored(indent(fmt.Sprintf("-> %s(%s) [%s]", tc.Name(), tc.Arguments(), tc.ID)), ColorYellow)
			r.WriteLine("")
		}
	}
}

// RenderTools lists tools with their descriptions and parameter schemas.
func (r *Renderer) RenderTools(tools []tool.Tool) {
	for _, t := range tools {
		r.WriteColored(t.Name(), ColorBold+ColorCyan)
		r.WriteLine("")
		r.WriteLine(indent(firstLine(t.Description())))

		schema, err := json.MarshalIndent(t.Parameters(), "", "  ")
		if err == nil {
			r.WriteColored(indent(string(schema)), ColorGray)
			r.WriteLine("")
		}
		r.WriteLine("")
	}
}

func roleColor(m llm.Message) string {
	switch m.Role {
	case llm.RoleSystem:
		return ColorGray
	case llm.RoleUser:
		return ColorBlue
	case llm.RoleAssistant:
		return ColorMagenta
	case llm.RoleTool:
		if m.IsError {
			return ColorRed
		}
		return ColorGreen
	default:
		return ColorReset
	}
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("... (%d more chars)", len(s)-limit)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
