// Package agent drives the Think/Act loop of a single run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stepwise/internal/hook"
	"stepwise/internal/llm"
	"stepwise/internal/logger"
	"stepwise/internal/memory"
	"stepwise/internal/retry"
	"stepwise/internal/tool"
)

var (
	ErrAlreadyRunning = errors.New("agent is already running")
	ErrEmptyTask      = errors.New("task must not be empty")
)

type Config struct {
	Temperature float32
	MaxTokens   int
	Limits      RunLimits
	Retry       retry.Policy

	// IncludeBestPractices appends the tools' usage notes to the system prompt.
	IncludeBestPractices bool
}

func DefaultConfig() *Config {
	return &Config{
		Temperature: 0.7,
		MaxTokens:   4096,
		Limits:      DefaultLimits(),
		Retry:       retry.DefaultPolicy(),
	}
}

type Input struct {
	Task string

	// Limits replaces Config.Limits for this run when set.
	Limits *RunLimits
}

// Output is the final result of a run. It is returned for FINISHED and
// ERROR runs alike.
type Output struct {
	RunID  string
	State  State
	Reason Reason
	Result string

	// Status is the outcome the model declared through the terminate tool
	// ("success" or "failure"), empty otherwise. It is advisory: a
	// terminated run is FINISHED either way.
	Status string

	Messages  []llm.Message
	ToolCalls []*tool.CallResult
	Steps     int
	Duration  time.Duration
}

// RunError is returned alongside the Output of a run that ended in ERROR.
type RunError struct {
	Reason Reason
	Err    error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Agent owns the collaborators of a run. It runs one task at a time.
type Agent struct {
	name         string
	systemPrompt string
	llmClient    llm.Client
	toolRegistry *tool.Registry
	executor     *tool.Executor
	hooks        *hook.Manager
	logger       *logger.Logger
	tracer       trace.Tracer
	config       *Config
	running      atomic.Bool
}

func New(name, systemPrompt string, client llm.Client, registry *tool.Registry, cfg *Config) *Agent {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}

	return &Agent{
		name:         name,
		systemPrompt: systemPrompt,
		llmClient:    client,
		toolRegistry: registry,
		executor:     tool.NewExecutor(registry),
		logger:       logger.Discard(),
		tracer:       otel.Tracer("stepwise/agent"),
		config:       cfg,
	}
}

func (a *Agent) Name() string {
	return a.name
}

// SetExecutor replaces the default mixed-mode executor.
func (a *Agent) SetExecutor(executor *tool.Executor) {
	a.executor = executor
}

// SetHookManager sets the manager for lifecycle hooks and passes it to the
// executor for tool hooks.
func (a *Agent) SetHookManager(manager *hook.Manager) {
	a.hooks = manager
	a.executor.SetHookManager(manager)
}

func (a *Agent) SetLogger(l *logger.Logger) {
	if l != nil {
		a.logger = l
	}
}

func (a *Agent) SetTracer(tracer trace.Tracer) {
	if tracer != nil {
		a.tracer = tracer
	}
}

// Run executes input.Task until the model answers, a terminate call
// succeeds or a limit ends the run. The error is a *RunError exactly when
// the run ended in ERROR; the Output is returned either way. Invalid input
// is rejected before the run starts with a nil Output.
func (a *Agent) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Task) == "" {
		return nil, ErrEmptyTask
	}
	limits := a.config.Limits
	if input.Limits != nil {
		limits = *input.Limits
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run limits: %w", err)
	}
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer a.running.Store(false)

	// The set of tools stays fixed from here on.
	a.toolRegistry.Freeze()

	ec := a.newExecutionContext(limits)

	ctx, span := ec.Tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", a.name),
		attribute.String("agent.run_id", ec.RunID),
		attribute.Int("agent.max_steps", limits.MaxSteps),
	))
	defer span.End()

	if !ec.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, ec.Deadline)
		defer cancel()
	}

	r := &run{ec: ec, mem: memory.New(), stall: newStallDetector(limits.StallWindow)}

	ec.Logger.SessionStart(input.Task)
	a.hooks.Notify(ctx, hook.NewHookData(hook.OnAgentStart, "").
		Set("run_id", ec.RunID).
		Set("task", input.Task))

	if err := a.seed(r.mem, input.Task); err != nil {
		r.fail(ReasonMalformedMemory, err)
	} else {
		r.state = StateRunning
		r.loop(ctx)
	}

	out := &Output{
		RunID:     ec.RunID,
		State:     r.state,
		Reason:    r.reason,
		Result:    r.answer,
		Status:    r.status,
		Messages:  r.mem.Snapshot(),
		ToolCalls: r.toolCalls,
		Steps:     ec.CurrentStep,
		Duration:  ec.Elapsed(),
	}

	a.hooks.Notify(ctx, hook.NewHookData(hook.OnAgentEnd, "").
		Set("run_id", ec.RunID).
		Set("state", out.State.String()).
		Set("reason", string(out.Reason)).
		Set("status", out.Status).
		Set("steps", out.Steps))
	ec.Logger.SessionEnd(out.Duration, ec.ToolCallCount, out.State.String(), string(out.Reason))

	span.SetAttributes(
		attribute.String("agent.state", out.State.String()),
		attribute.String("agent.reason", string(out.Reason)),
		attribute.String("agent.status", out.Status),
		attribute.Int("agent.steps", out.Steps),
	)

	if r.state == StateError {
		span.SetStatus(codes.Error, string(r.reason))
		return out, &RunError{Reason: r.reason, Err: r.err}
	}
	return out, nil
}

func (a *Agent) newExecutionContext(limits RunLimits) *ExecutionContext {
	runID := uuid.NewString()
	now := time.Now()

	ec := &ExecutionContext{
		RunID:       runID,
		Client:      a.llmClient,
		Registry:    a.toolRegistry,
		Executor:    a.executor,
		Hooks:       a.hooks,
		Logger:      a.logger.With("run_id", runID),
		Tracer:      a.tracer,
		Limits:      limits,
		Retry:       a.config.Retry,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
		Tools:       a.toolRegistry.GetToolDefinitions(),
		StartTime:   now,
	}
	if limits.MaxDuration > 0 {
		ec.Deadline = now.Add(limits.MaxDuration)
	}
	return ec
}

// seed writes the system prompt and the task. Both survive truncation.
func (a *Agent) seed(mem *memory.Store, task string) error {
	prompt := a.systemPrompt
	if a.config.IncludeBestPractices {
		if bp := a.toolRegistry.GetToolBestPractices(); bp != "" {
			prompt = strings.TrimSpace(prompt + "\n\n" + bp)
		}
	}
	if prompt != "" {
		if err := mem.Append(llm.Message{Role: llm.RoleSystem, Content: prompt}); err != nil {
			return err
		}
	}
	return mem.Append(llm.Message{Role: llm.RoleUser, Content: task})
}

// run is the mutable state of one Run call. Only the loop goroutine
// touches it.
type run struct {
	ec    *ExecutionContext
	mem   *memory.Store
	stall *stallDetector

	state     State
	reason    Reason
	err       error
	answer    string
	status    string
	toolCalls []*tool.CallResult
}

func (r *run) loop(ctx context.Context) {
	ec := r.ec
	for {
		if reason, err := interrupted(ctx, ec); err != nil {
			r.fail(reason, err)
			return
		}
		if ec.CurrentStep >= ec.Limits.MaxSteps {
			r.fail(ReasonStepLimit, fmt.Errorf("all %d steps used", ec.Limits.MaxSteps))
			return
		}
		ec.CurrentStep++
		ec.LogProgress()

		if n := r.mem.Truncate(ec.Limits.MaxMessages); n > 0 {
			ec.Logger.Debug("Evicted %d message(s) from memory", n)
		}

		msg, err := think(ctx, ec, r.mem.Snapshot())
		if err != nil {
			r.fail(thinkFailure(ctx, ec), err)
			return
		}
		if err := r.mem.Append(msg); err != nil {
			r.fail(ReasonMalformedMemory, err)
			return
		}
		if msg.Reason != "" {
			ec.LogReasoning(msg.Reason)
		}

		if !msg.HasToolCalls() {
			r.answer = msg.Content
			ec.LogResponse(msg.Content)
			r.finish(ReasonFinalAnswer)
			return
		}
		if msg.Content != "" {
			r.answer = msg.Content
			ec.LogReasoning(msg.Content)
		}

		outcome, err := act(ctx, ec, r.mem, msg.ToolCalls)
		r.toolCalls = append(r.toolCalls, outcome.Results...)
		if err != nil {
			r.fail(ReasonMalformedMemory, err)
			return
		}
		if outcome.Terminated {
			r.answer = outcome.Answer
			r.status = outcome.Status
			ec.LogResponse(outcome.Answer)
			r.finish(ReasonTerminated)
			return
		}
		if r.stall.Observe(msg.ToolCalls, outcome.Results) {
			r.fail(ReasonNoProgress, fmt.Errorf("same actions and observations %d times in a row", r.stall.Repeats()))
			return
		}
	}
}

func (r *run) finish(reason Reason) {
	r.state = StateFinished
	r.reason = reason
}

func (r *run) fail(reason Reason, err error) {
	r.state = StateError
	r.reason = reason
	r.err = err
	r.ec.Logger.Error("Run failed (%s): %v", reason, err)
}

// interrupted reports why the run must stop before the next Think call.
func interrupted(ctx context.Context, ec *ExecutionContext) (Reason, error) {
	if ec.Expired() {
		return ReasonTimeLimit, fmt.Errorf("exceeded %s", ec.Limits.MaxDuration)
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ReasonTimeLimit, err
		}
		return ReasonCancelled, err
	}
	return "", nil
}

// thinkFailure maps a Think error to a reason. Context errors count as
// cancellation or time limit only when the run's own context is done.
func thinkFailure(ctx context.Context, ec *ExecutionContext) Reason {
	if ctx.Err() != nil || ec.Expired() {
		if reason, ierr := interrupted(ctx, ec); ierr != nil {
			return reason
		}
	}
	return ReasonThinkFailed
}
