package agent

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"stepwise/internal/hook"
	"stepwise/internal/llm"
	"stepwise/internal/logger"
	"stepwise/internal/retry"
	"stepwise/internal/tool"
)

// ExecutionContext carries the configuration and shared resources of one
// run. It is created when the run starts and passed to every step; the
// client, registry and executor are shared read-only with tool executions.
type ExecutionContext struct {
	RunID    string
	Client   llm.Client
	Registry *tool.Registry
	Executor *tool.Executor
	Hooks    *hook.Manager
	Logger   *logger.Logger
	Tracer   trace.Tracer

	Limits      RunLimits
	Retry       retry.Policy
	Temperature float32
	MaxTokens   int

	// Tools is the schema list offered to the model, fixed for the run.
	Tools []*llm.ToolDefinition

	StartTime     time.Time
	Deadline      time.Time // zero when MaxDuration is 0
	CurrentStep   int
	ToolCallCount int
}

// Elapsed returns the time since the run started.
func (ctx *ExecutionContext) Elapsed() time.Duration {
	return time.Since(ctx.StartTime)
}

// Expired reports whether the run's time budget is spent.
func (ctx *ExecutionContext) Expired() bool {
	return !ctx.Deadline.IsZero() && !time.Now().Before(ctx.Deadline)
}

// LogToolCall logs a tool call with its parameters
func (ctx *ExecutionContext) LogToolCall(toolName, params string) {
	ctx.ToolCallCount++
	ctx.Logger.ToolCall(toolName, params)
}

// LogToolResult logs a tool execution result
func (ctx *ExecutionContext) LogToolResult(cr *tool.CallResult) {
	text := cr.Result.Output
	if !cr.Result.Success {
		text = cr.Result.Error
	}
	ctx.Logger.ToolResult(cr.ToolName, cr.Result.Success, text, cr.Duration())
}

// LogReasoning logs the agent's reasoning/thinking process
func (ctx *ExecutionContext) LogReasoning(content string) {
	ctx.Logger.AgentReasoning(content)
}

// LogResponse logs the agent's response
func (ctx *ExecutionContext) LogResponse(content string) {
	ctx.Logger.AgentResponse(content)
}

// LogProgress logs the current step out of the step budget
func (ctx *ExecutionContext) LogProgress() {
	ctx.Logger.Progress(ctx.CurrentStep, ctx.Limits.MaxSteps,
		fmt.Sprintf("Step %d/%d: thinking", ctx.CurrentStep, ctx.Limits.MaxSteps))
}
