package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"stepwise/internal/hook"
	"stepwise/internal/llm"
)

type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
	ExecutionModeParallel   ExecutionMode = "parallel"
	ExecutionModeMixed      ExecutionMode = "mixed"
)

// ParseMode converts a configuration string into an ExecutionMode.
func ParseMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ExecutionModeSequential, ExecutionModeParallel, ExecutionModeMixed:
		return m, nil
	case "":
		return ExecutionModeMixed, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", s)
	}
}

// EmptyOutputPlaceholder is returned when a tool produces no output.
// This ensures LLM APIs (which require non-empty content) don't fail with 400 errors.
const EmptyOutputPlaceholder = "(Tool executed successfully with no output)"

// DefaultOutputLimit is the number of characters of tool output kept by default.
const DefaultOutputLimit = 30000

// Executor runs the tool calls of one assistant message. Every call yields
// exactly one CallResult; failures become error results, never Go errors.
type Executor struct {
	registry       *Registry
	mode           ExecutionMode
	hookManager    *hook.Manager
	maxConcurrency int
	timeout        time.Duration
	outputLimit    int
	tracer         trace.Tracer
	metrics        *callMetrics
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:    registry,
		mode:        ExecutionModeMixed,
		outputLimit: DefaultOutputLimit,
		tracer:      otel.Tracer("stepwise/tool"),
		metrics:     newCallMetrics(otel.Meter("stepwise/tool")),
	}
}

func (e *Executor) SetMode(mode ExecutionMode) {
	e.mode = mode
}

func (e *Executor) Mode() ExecutionMode {
	return e.mode
}

// SetHookManager sets the hook manager for tool execution hooks
func (e *Executor) SetHookManager(manager *hook.Manager) {
	e.hookManager = manager
}

// SetMaxConcurrency bounds the number of calls running at once. n <= 0
// means unbounded.
func (e *Executor) SetMaxConcurrency(n int) {
	e.maxConcurrency = n
}

// SetTimeout bounds each individual tool execution. d <= 0 disables it.
func (e *Executor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// SetOutputLimit caps the characters of output handed back to the model.
// n <= 0 disables truncation.
func (e *Executor) SetOutputLimit(n int) {
	e.outputLimit = n
}

func (e *Executor) SetTracer(tracer trace.Tracer) {
	if tracer != nil {
		e.tracer = tracer
	}
}

// SetMeterProvider replaces the global meter provider for tool metrics.
func (e *Executor) SetMeterProvider(provider metric.MeterProvider) {
	if provider != nil {
		e.metrics = newCallMetrics(provider.Meter("stepwise/tool"))
	}
}

// Execute runs toolCalls according to the configured mode and returns once
// all of them have finished. Results are ordered by completion time.
//
// Tools run on a context that keeps ctx's values but not its cancellation,
// so a cancelled run lets in-flight tools finish or hit their own timeout.
func (e *Executor) Execute(ctx context.Context, toolCalls []*llm.ToolCall) []*CallResult {
	if len(toolCalls) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	switch e.mode {
	case ExecutionModeParallel:
		return e.executeParallel(ctx, toolCalls)
	case ExecutionModeMixed:
		return e.executeMixed(ctx, toolCalls)
	default:
		return e.executeSequential(ctx, toolCalls)
	}
}

func (e *Executor) executeSequential(ctx context.Context, toolCalls []*llm.ToolCall) []*CallResult {
	results := make([]*CallResult, 0, len(toolCalls))
	for _, tc := range toolCalls {
		results = append(results, e.executeOne(ctx, tc))
	}
	return results
}

func (e *Executor) executeParallel(ctx context.Context, toolCalls []*llm.ToolCall) []*CallResult {
	done := make(chan *CallResult, len(toolCalls))

	var sem chan struct{}
	if e.maxConcurrency > 0 {
		sem = make(chan struct{}, e.maxConcurrency)
	}

	var wg sync.WaitGroup
	for _, tc := range toolCalls {
		wg.Add(1)
		go func(call *llm.ToolCall) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			done <- e.executeOne(ctx, call)
		}(tc)
	}

	wg.Wait()
	close(done)

	results := make([]*CallResult, 0, len(toolCalls))
	for r := range done {
		results = append(results, r)
	}
	return results
}

// executeMixed runs batches in parallel; a call never starts before every
// mutating call issued ahead of it has finished.
func (e *Executor) executeMixed(ctx context.Context, toolCalls []*llm.ToolCall) []*CallResult {
	deps := e.analyzeDependencies(toolCalls)
	if len(deps) == 0 {
		return e.executeParallel(ctx, toolCalls)
	}

	results := make([]*CallResult, 0, len(toolCalls))
	for _, batch := range buildExecutionBatches(len(toolCalls), deps) {
		batchCalls := make([]*llm.ToolCall, len(batch))
		for i, idx := range batch {
			batchCalls[i] = toolCalls[idx]
		}
		results = append(results, e.executeParallel(ctx, batchCalls)...)
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, tc *llm.ToolCall) *CallResult {
	cr := &CallResult{
		ToolName:  tc.Name(),
		CallID:    tc.ID,
		Params:    []byte(tc.Arguments()),
		StartTime: time.Now(),
	}

	ctx, span := e.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", cr.ToolName),
		attribute.String("tool.call_id", cr.CallID),
	))
	defer span.End()

	cr.Result = e.run(ctx, tc)
	cr.Result = normalize(cr.Result, e.outputLimit)
	cr.EndTime = time.Now()

	label := unknownToolLabel
	if _, err := e.registry.Get(cr.ToolName); err == nil {
		label = cr.ToolName
	}
	e.metrics.record(ctx, label, cr)

	span.SetAttributes(attribute.Bool("tool.success", cr.Result.Success))
	if !cr.Result.Success {
		span.SetStatus(codes.Error, cr.Result.Error)
	}
	return cr
}

// run resolves, validates and executes one call between its hooks. A panic
// anywhere in that sequence, hooks included, becomes a failed result.
func (e *Executor) run(ctx context.Context, tc *llm.ToolCall) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			trace.SpanFromContext(ctx).AddEvent("panic", trace.WithAttributes(
				attribute.String("stack", string(debug.Stack())),
			))
			result = failure(fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	name := tc.Name()
	t, err := e.registry.Get(name)
	if err != nil {
		return failure(ErrToolNotFound.Error())
	}

	args, err := decodeArguments(tc.Arguments())
	if err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := e.registry.Validate(name, args); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err))
	}

	startTime := time.Now()
	if e.hookManager != nil {
		hookData := hook.NewHookData(hook.BeforeToolExecution, name).
			Set("params", tc.Arguments()).
			Set("call_id", tc.ID)

		feedback, err := e.hookManager.Trigger(ctx, hookData)
		if err != nil {
			return failure(fmt.Sprintf("hook error: %v", err))
		}
		if feedback != nil && !feedback.Allow {
			return failure("denied: " + feedback.Message)
		}

		// Tools such as bash trigger their own hook points.
		ctx = hook.ContextWithManager(ctx, e.hookManager)
	}

	result = e.invoke(ctx, t, tc)

	if e.hookManager != nil {
		hookData := hook.NewHookData(hook.AfterToolExecution, name).
			Set("params", tc.Arguments()).
			Set("call_id", tc.ID).
			Set("result", result).
			Set("success", result.Success).
			Set("duration", time.Since(startTime))

		// After hooks observe only.
		e.hookManager.Notify(ctx, hookData)
	}

	return result
}

// invoke calls the tool under the per-call timeout and converts returned
// errors into failed results.
func (e *Executor) invoke(ctx context.Context, t Tool, tc *llm.ToolCall) *Result {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res, err := t.Execute(ctx, []byte(tc.Arguments()))
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && e.timeout > 0:
		return failure(fmt.Sprintf("timed out after %s", e.timeout))
	case err != nil:
		return failure(err.Error())
	case res == nil:
		return failure("tool returned no result")
	}
	return res
}

func failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// normalize enforces the Output XOR Error shape and the output limit.
func normalize(r *Result, limit int) *Result {
	if !r.Success {
		if r.Error == "" {
			r.Error = r.Output
		}
		if r.Error == "" {
			r.Error = "tool failed without a message"
		}
		r.Output = ""
		r.Error = TruncateOutput(r.Error, limit)
		return r
	}

	r.Error = ""
	r.Output = TruncateOutput(r.Output, limit)
	if r.Output == "" {
		r.Output = EmptyOutputPlaceholder
	}
	return r
}

// TruncateOutput keeps the head and tail of s when it exceeds limit
// characters (runes), replacing the middle with a marker. The result is
// always valid UTF-8 when s is.
func TruncateOutput(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	half := limit / 2
	removed := len(runes) - 2*half
	return string(runes[:half]) +
		fmt.Sprintf("\n\n[output truncated: %d characters removed from the middle]\n\n", removed) +
		string(runes[len(runes)-half:])
}

// analyzeDependencies makes every call depend on each mutating call issued
// before it.
func (e *Executor) analyzeDependencies(toolCalls []*llm.ToolCall) map[int][]int {
	deps := make(map[int][]int)

	var writers []int
	for i, tc := range toolCalls {
		if len(writers) > 0 {
			deps[i] = append([]int(nil), writers...)
		}
		if t, err := e.registry.Get(tc.Name()); err == nil && mutates(t) {
			writers = append(writers, i)
		}
	}

	return deps
}

// buildExecutionBatches groups call indices into batches whose dependencies
// are all satisfied by earlier batches.
func buildExecutionBatches(n int, deps map[int][]int) [][]int {
	batches := make([][]int, 0)
	executed := make(map[int]bool)

	for len(executed) < n {
		batch := make([]int, 0)

		for i := 0; i < n; i++ {
			if executed[i] {
				continue
			}

			canExecute := true
			for _, dep := range deps[i] {
				if !executed[dep] {
					canExecute = false
					break
				}
			}

			if canExecute {
				batch = append(batch, i)
			}
		}

		// Dependencies only point backwards, so a batch is never empty.
		for _, idx := range batch {
			executed[idx] = true
		}

		batches = append(batches, batch)
	}

	return batches
}

// DescribePlan renders the batches mixed mode would use for toolCalls.
func (e *Executor) DescribePlan(toolCalls []*llm.ToolCall) string {
	deps := e.analyzeDependencies(toolCalls)
	batches := buildExecutionBatches(len(toolCalls), deps)

	var b strings.Builder
	fmt.Fprintf(&b, "%d call(s), %d batch(es), mode %s", len(toolCalls), len(batches), e.mode)
	for i, batch := range batches {
		names := make([]string, len(batch))
		for j, idx := range batch {
			names[j] = toolCalls[idx].Name()
		}
		fmt.Fprintf(&b, "\n  batch %d: %s", i+1, strings.Join(names, ", "))
	}
	return b.String()
}
