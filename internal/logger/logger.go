package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota // Debug information (only shown with --verbose)
	LevelInfo               // Important steps
	LevelTool               // Tool call related
	LevelAgent              // Agent response
	LevelWarn               // Recoverable problems such as retries
	LevelError              // Error messages
)

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "tool":
		return LevelTool, nil
	case "agent":
		return LevelAgent, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelTool:
		return "tool"
	case LevelAgent:
		return "agent"
	case LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// zerologLevel maps the custom levels onto zerolog's.
func (lv Level) zerologLevel() zerolog.Level {
	switch lv {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ANSI color codes for terminal output
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

// Logger writes either human-oriented colored text or one JSON object per
// event. Loggers derived with With share the writer and its lock.
type Logger struct {
	writer    io.Writer
	level     Level
	showTime  bool
	colorMode bool
	json      *zerolog.Logger
	mu        *sync.Mutex
}

// NewLogger creates a new text Logger instance
func NewLogger(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		writer:    w,
		level:     level,
		showTime:  true,
		colorMode: true,
		mu:        &sync.Mutex{},
	}
}

// NewJSONLogger creates a Logger that emits zerolog JSON events.
func NewJSONLogger(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	zl := zerolog.New(w).Level(level.zerologLevel()).With().Timestamp().Logger()
	return &Logger{
		writer: w,
		level:  level,
		json:   &zl,
		mu:     &sync.Mutex{},
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	l := NewLogger(io.Discard, LevelError)
	l.colorMode = false
	return l
}

// With returns a child logger carrying key=value on every JSON event.
// Text output is unchanged.
func (l *Logger) With(key string, value any) *Logger {
	child := *l
	if l.json != nil {
		zl := l.json.With().Interface(key, value).Logger()
		child.json = &zl
	}
	return &child
}

// IsJSON reports whether the logger emits JSON.
func (l *Logger) IsJSON() bool {
	return l.json != nil
}

// Level returns the minimum level that is written.
func (l *Logger) Level() Level {
	return l.level
}

// SetColorMode enables or disables colored output
func (l *Logger) SetColorMode(enabled bool) {
	l.colorMode = enabled
}

// SetShowTime enables or disables timestamp display
func (l *Logger) SetShowTime(enabled bool) {
	l.showTime = enabled
}

// Debug logs debug information (only shown in verbose mode)
func (l *Logger) Debug(format string, args ...any) {
	if l.level <= LevelDebug {
		l.log(LevelDebug, ColorGray, "DEBUG", format, args...)
	}
}

// Info logs general information
func (l *Logger) Info(format string, args ...any) {
	if l.level <= LevelInfo {
		l.log(LevelInfo, ColorBlue, "INFO", format, args...)
	}
}

// Warn logs recoverable problems
func (l *Logger) Warn(format string, args ...any) {
	if l.level <= LevelWarn {
		l.log(LevelWarn, ColorYellow, "WARN", format, args...)
	}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, ColorRed, "ERROR", format, args...)
}

// AgentReasoning logs reasoning text returned alongside a response
func (l *Logger) AgentReasoning(content string) {
	if l.level > LevelDebug || content == "" {
		return
	}
	if l.json != nil {
		l.event(LevelDebug).Str("reasoning", content).Msg("agent reasoning")
		return
	}
	l.printSection(ColorMagenta, "🧠 Reasoning", content)
}

// AgentResponse logs the agent's response with structured formatting
func (l *Logger) AgentResponse(content string) {
	if l.level > LevelAgent {
		return
	}
	if l.json != nil {
		l.event(LevelAgent).Str("content", content).Msg("agent response")
		return
	}
	l.printSection(ColorGreen, "💬 Agent Response", content)
}

// ToolCall logs a tool call with its parameters
func (l *Logger) ToolCall(toolName string, params string) {
	if l.level > LevelTool {
		return
	}
	if l.json != nil {
		l.event(LevelTool).Str("tool", toolName).RawJSON("params", rawJSON(params)).Msg("tool call")
		return
	}
	formattedParams := l.formatJSON(params)
	l.printSection(ColorCyan, fmt.Sprintf("🔧 Tool Call: %s", toolName), formattedParams)
}

// ToolResult logs a tool execution result
func (l *Logger) ToolResult(toolName string, success bool, output string, duration time.Duration) {
	if l.level > LevelTool {
		return
	}
	if l.json != nil {
		l.event(LevelTool).
			Str("tool", toolName).
			Bool("success", success).
			Dur("duration", duration).
			Int("output_len", len(output)).
			Msg("tool result")
		return
	}

	status := "✅ Success"
	color := ColorGreen
	if !success {
		status = "❌ Failed"
		color = ColorRed
	}

	// Limit output to maximum 2 lines and 500 characters
	const maxLines = 2
	const maxLength = 500

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	displayOutput := output
	truncatedLines := false

	// First, limit to maximum 2 lines
	if len(lines) > maxLines {
		displayOutput = strings.Join(lines[:maxLines], "\n")
		truncatedLines = true
	}

	// Then, limit to maximum 500 characters
	if len(displayOutput) > maxLength {
		displayOutput = displayOutput[:maxLength] + "..."
	} else if truncatedLines {
		// Add ellipsis if we truncated lines but not characters
		displayOutput += "\n..."
	}

	header := fmt.Sprintf("📊 Tool Result: %s [%s] (%s)", toolName, status, duration)
	l.printSection(color, header, displayOutput)
}

// SessionStart logs the beginning of an agent session
func (l *Logger) SessionStart(task string) {
	if l.json != nil {
		l.event(LevelInfo).Str("task", task).Msg("session started")
		return
	}
	l.printBanner(ColorCyan, "🚀 Session Started", task)
}

// SessionEnd logs the completion of an agent session with statistics
func (l *Logger) SessionEnd(duration time.Duration, toolCallCount int, state, reason string) {
	if l.json != nil {
		l.event(LevelInfo).
			Dur("duration", duration).
			Int("tool_calls", toolCallCount).
			Str("state", state).
			Str("reason", reason).
			Msg("session ended")
		return
	}

	summary := fmt.Sprintf("Duration: %s | Tool Calls: %d | State: %s (%s)",
		duration.Round(time.Millisecond), toolCallCount, state, reason)
	if state == "FINISHED" {
		l.printBanner(ColorGreen, "✨ Session Completed", summary)
	} else {
		l.printBanner(ColorRed, "⛔ Session Failed", summary)
	}
}

// Progress logs the current step out of the step budget
func (l *Logger) Progress(current, total int, message string) {
	if l.level > LevelInfo {
		return
	}
	if l.json != nil {
		l.event(LevelInfo).Int("step", current).Int("max_steps", total).Msg(message)
		return
	}

	bar := l.progressBar(current, total, 30)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.writer, "%s [%d/%d] %s\n", bar, current, total, message)
}

func (l *Logger) event(level Level) *zerolog.Event {
	switch level {
	case LevelDebug:
		return l.json.Debug()
	case LevelWarn:
		return l.json.Warn()
	case LevelError:
		return l.json.Error()
	default:
		return l.json.Info().Str("kind", level.String())
	}
}

// log is the core logging method
func (l *Logger) log(lv Level, color, level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	if l.json != nil {
		l.event(lv).Msg(msg)
		return
	}

	timestamp := ""
	if l.showTime {
		timestamp = time.Now().Format("15:04:05") + " "
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.colorMode {
		fmt.Fprintf(l.writer, "%s%s[%s]%s %s\n",
			color, timestamp, level, ColorReset, msg)
	} else {
		fmt.Fprintf(l.writer, "%s[%s] %s\n", timestamp, level, msg)
	}
}

// printSection prints a formatted section with header and content
func (l *Logger) printSection(color, header, content string) {
	separator := strings.Repeat("─", 60)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.colorMode {
		fmt.Fprintf(l.writer, "\n%s%s%s%s\n", ColorBold, color, header, ColorReset)
		fmt.Fprintf(l.writer, "%s%s%s\n", color, separator, ColorReset)
		fmt.Fprintf(l.writer, "%s\n", content)
		fmt.Fprintf(l.writer, "%s%s%s\n\n", color, separator, ColorReset)
	} else {
		fmt.Fprintf(l.writer, "\n%s\n%s\n%s\n%s\n\n", header, separator, content, separator)
	}
}

// printBanner prints a prominent banner for session start/end
func (l *Logger) printBanner(color, title, subtitle string) {
	separator := strings.Repeat("═", 70)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.colorMode {
		fmt.Fprintf(l.writer, "\n%s%s%s%s\n", ColorBold, color, separator, ColorReset)
		fmt.Fprintf(l.writer, "%s%s  %s%s\n", ColorBold, color, title, ColorReset)
		if subtitle != "" {
			fmt.Fprintf(l.writer, "%s  %s%s\n", color, subtitle, ColorReset)
		}
		fmt.Fprintf(l.writer, "%s%s%s%s\n\n", ColorBold, color, separator, ColorReset)
	} else {
		fmt.Fprintf(l.writer, "\n%s\n  %s\n", separator, title)
		if subtitle != "" {
			fmt.Fprintf(l.writer, "  %s\n", subtitle)
		}
		fmt.Fprintf(l.writer, "%s\n\n", separator)
	}
}

// progressBar generates a progress bar string
func (l *Logger) progressBar(current, total, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	if l.colorMode {
		return fmt.Sprintf("%s%s%s %.0f%%", ColorCyan, bar, ColorReset, percent*100)
	}
	return fmt.Sprintf("%s %.0f%%", bar, percent*100)
}

// formatJSON formats JSON strings adaptively based on length
// Short JSON (< 80 chars) stays compact, long JSON gets pretty-printed
func (l *Logger) formatJSON(jsonStr string) string {
	// Trim whitespace
	compact := strings.TrimSpace(jsonStr)

	// If it's short, keep it compact
	if len(compact) < 80 {
		return compact
	}

	// Otherwise, pretty-print it
	var obj interface{}
	if err := json.Unmarshal([]byte(compact), &obj); err != nil {
		// If parsing fails, return original
		return compact
	}

	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return compact
	}

	return string(pretty)
}

// rawJSON returns s when it is valid JSON, otherwise s encoded as a JSON string.
func rawJSON(s string) []byte {
	if json.Valid([]byte(s)) {
		return []byte(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
