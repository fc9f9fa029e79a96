package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"stepwise/internal/hook"
	"stepwise/internal/llm"
)

// funcTool is a configurable tool for executor tests.
type funcTool struct {
	name    string
	mutates bool
	schema  map[string]any
	fn      func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.name }
func (t *funcTool) BestPractices() string      { return "" }
func (t *funcTool) Parameters() map[string]any { return t.schema }
func (t *funcTool) Mutates() bool              { return t.mutates }

func (t *funcTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return t.fn(ctx, params)
}

func call(id, name, args string) *llm.ToolCall {
	return &llm.ToolCall{ID: id, Type: "function", Function: &llm.FunctionCall{Name: name, Arguments: args}}
}

func newTestExecutor(t *testing.T, tools ...Tool) *Executor {
	t.Helper()
	registry := NewRegistry()
	for _, tl := range tools {
		if err := registry.Register(tl); err != nil {
			t.Fatalf("Failed to register %s: %v", tl.Name(), err)
		}
	}
	registry.Freeze()
	return NewExecutor(registry)
}

func okTool(name string) *funcTool {
	return &funcTool{name: name, fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		return &Result{Success: true, Output: name + " ok"}, nil
	}}
}

func resultByID(results []*CallResult) map[string]*CallResult {
	m := make(map[string]*CallResult, len(results))
	for _, r := range results {
		m[r.CallID] = r
	}
	return m
}

func TestExecutor_UnknownTool(t *testing.T) {
	exec := newTestExecutor(t)
	results := exec.Execute(context.Background(), []*llm.ToolCall{call("c1", "unknown_tool", `{}`)})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.CallID != "c1" || r.Result.Success {
		t.Fatalf("Unexpected result %+v", r.Result)
	}
	if r.Result.Error != "unknown tool" {
		t.Errorf("Expected 'unknown tool', got %q", r.Result.Error)
	}
	if r.Result.Output != "" {
		t.Errorf("Error results must not carry output, got %q", r.Result.Output)
	}
}

func TestExecutor_InvalidArguments(t *testing.T) {
	var ran atomic.Bool
	strict := &funcTool{
		name: "strict",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			ran.Store(true)
			return &Result{Success: true}, nil
		},
	}
	exec := newTestExecutor(t, strict)

	results := resultByID(exec.Execute(context.Background(), []*llm.ToolCall{
		call("bad-json", "strict", `{"path":`),
		call("missing", "strict", `{}`),
	}))

	for id, r := range results {
		if r.Result.Success || !strings.HasPrefix(r.Result.Error, "invalid arguments:") {
			t.Errorf("%s: expected invalid arguments error, got %+v", id, r.Result)
		}
	}
	if ran.Load() {
		t.Error("Tool must not run when validation fails")
	}
}

func TestExecutor_ErrorsAndPanicsBecomeResults(t *testing.T) {
	failing := &funcTool{name: "failing", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		return nil, errors.New("disk on fire")
	}}
	panicking := &funcTool{name: "panicking", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		panic("boom")
	}}
	exec := newTestExecutor(t, failing, panicking)
	exec.SetMode(ExecutionModeParallel)

	results := resultByID(exec.Execute(context.Background(), []*llm.ToolCall{
		call("f", "failing", `{}`),
		call("p", "panicking", `{}`),
	}))

	if got := results["f"].Result.Error; got != "disk on fire" {
		t.Errorf("Expected tool error message, got %q", got)
	}
	if got := results["p"].Result.Error; !strings.Contains(got, "tool panicked: boom") {
		t.Errorf("Expected panic to be reported, got %q", got)
	}
}

func TestExecutor_ParallelCompletionOrder(t *testing.T) {
	slow := &funcTool{name: "slow", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		time.Sleep(50 * time.Millisecond)
		return &Result{Success: true, Output: "slow"}, nil
	}}
	exec := newTestExecutor(t, slow, okTool("fast"))
	exec.SetMode(ExecutionModeParallel)

	results := exec.Execute(context.Background(), []*llm.ToolCall{
		call("c-slow", "slow", `{}`),
		call("c-fast", "fast", `{}`),
	})

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].CallID != "c-fast" || results[1].CallID != "c-slow" {
		t.Errorf("Expected completion order [c-fast c-slow], got [%s %s]", results[0].CallID, results[1].CallID)
	}
}

func TestExecutor_MaxConcurrency(t *testing.T) {
	var running, peak int32
	busy := &funcTool{name: "busy", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return &Result{Success: true}, nil
	}}
	exec := newTestExecutor(t, busy)
	exec.SetMode(ExecutionModeParallel)
	exec.SetMaxConcurrency(2)

	var calls []*llm.ToolCall
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		calls = append(calls, call(id, "busy", `{}`))
	}
	if got := len(exec.Execute(context.Background(), calls)); got != 5 {
		t.Fatalf("Expected 5 results, got %d", got)
	}
	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestExecutor_MixedWaitsForMutator(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string, d time.Duration, mutates bool) *funcTool {
		return &funcTool{name: name, mutates: mutates, fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			time.Sleep(d)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return &Result{Success: true}, nil
		}}
	}
	exec := newTestExecutor(t,
		record("writer", 30*time.Millisecond, true),
		record("reader", 0, false),
	)

	calls := []*llm.ToolCall{call("w", "writer", `{}`), call("r", "reader", `{}`)}
	results := exec.Execute(context.Background(), calls)

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if strings.Join(order, ",") != "writer,reader" {
		t.Errorf("Reader must wait for the writer, got order %v", order)
	}
	if plan := exec.DescribePlan(calls); !strings.Contains(plan, "2 batch(es)") {
		t.Errorf("Expected two batches in plan, got:\n%s", plan)
	}
}

func TestExecutor_HookDenial(t *testing.T) {
	var ran atomic.Bool
	guarded := &funcTool{name: "guarded", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		ran.Store(true)
		return &Result{Success: true}, nil
	}}
	exec := newTestExecutor(t, guarded)

	manager := hook.NewManager()
	manager.Register(&hook.Func{
		HandlerName: "deny",
		On:          []hook.HookPoint{hook.BeforeToolExecution},
		Fn: func(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
			return hook.DenyFeedback("not today"), nil
		},
	})
	exec.SetHookManager(manager)

	results := exec.Execute(context.Background(), []*llm.ToolCall{call("g", "guarded", `{}`)})
	if got := results[0].Result.Error; got != "denied: not today" {
		t.Errorf("Expected denial error, got %q", got)
	}
	if ran.Load() {
		t.Error("Denied tool must not run")
	}
}

func TestExecutor_AfterHookSeesResult(t *testing.T) {
	exec := newTestExecutor(t, okTool("echo"))
	manager := hook.NewManager()
	exec.SetHookManager(manager)

	exec.Execute(context.Background(), []*llm.ToolCall{call("e", "echo", `{}`)})

	var after *hook.HookData
	for _, ev := range manager.History() {
		if ev.Data.Point == hook.AfterToolExecution {
			after = ev.Data
		}
	}
	if after == nil {
		t.Fatal("Expected an after_tool_execution event")
	}
	if after.GetString("call_id") != "e" {
		t.Errorf("Expected call_id e, got %q", after.GetString("call_id"))
	}
}

func TestExecutor_TimeoutAndDetachedCancellation(t *testing.T) {
	waiter := &funcTool{name: "waiter", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(40 * time.Millisecond):
			return &Result{Success: true, Output: "finished"}, nil
		}
	}}
	exec := newTestExecutor(t, waiter)

	// A cancelled run context does not interrupt the tool.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := exec.Execute(ctx, []*llm.ToolCall{call("w1", "waiter", `{}`)})
	if got := results[0].Result.Output; got != "finished" {
		t.Errorf("Expected tool to finish despite cancellation, got %+v", results[0].Result)
	}

	exec.SetTimeout(5 * time.Millisecond)
	results = exec.Execute(context.Background(), []*llm.ToolCall{call("w2", "waiter", `{}`)})
	if got := results[0].Result.Error; !strings.Contains(got, "timed out after") {
		t.Errorf("Expected timeout error, got %q", got)
	}
}

func TestExecutor_NormalizesOutput(t *testing.T) {
	empty := &funcTool{name: "empty", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		return &Result{Success: true}, nil
	}}
	big := &funcTool{name: "big", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		return &Result{Success: true, Output: strings.Repeat("a", 50) + strings.Repeat("z", 50)}, nil
	}}
	exec := newTestExecutor(t, empty, big)
	exec.SetMode(ExecutionModeSequential)
	exec.SetOutputLimit(20)

	results := exec.Execute(context.Background(), []*llm.ToolCall{
		call("e", "empty", `{}`),
		call("b", "big", `{}`),
	})

	if results[0].CallID != "e" || results[0].Result.Output != EmptyOutputPlaceholder {
		t.Errorf("Expected placeholder output, got %+v", results[0].Result)
	}
	out := results[1].Result.Output
	if !strings.HasPrefix(out, strings.Repeat("a", 10)) || !strings.HasSuffix(out, strings.Repeat("z", 10)) {
		t.Errorf("Expected head and tail to be kept, got %q", out)
	}
	if !strings.Contains(out, "80 characters removed") {
		t.Errorf("Expected truncation marker, got %q", out)
	}
}

func TestTruncateOutput_KeepsRunesWhole(t *testing.T) {
	in := strings.Repeat("é", 30)
	out := TruncateOutput(in, 23)

	if !utf8.ValidString(out) {
		t.Fatalf("Expected valid UTF-8, got %q", out)
	}
	if !strings.HasPrefix(out, strings.Repeat("é", 11)) || !strings.HasSuffix(out, strings.Repeat("é", 11)) {
		t.Errorf("Expected 11 runes kept at each end, got %q", out)
	}
	if !strings.Contains(out, "8 characters removed") {
		t.Errorf("Expected removed count in runes, got %q", out)
	}
	if got := TruncateOutput("héllo", 5); got != "héllo" {
		t.Errorf("Five runes fit a limit of five, got %q", got)
	}
}

type panickyHook struct {
	point hook.HookPoint
}

func (h *panickyHook) Name() string             { return "panicky" }
func (h *panickyHook) Points() []hook.HookPoint { return []hook.HookPoint{h.point} }
func (h *panickyHook) Priority() int            { return 0 }

func (h *panickyHook) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	panic("hook blew up")
}

type silentHook struct{}

func (h *silentHook) Name() string             { return "silent" }
func (h *silentHook) Points() []hook.HookPoint { return []hook.HookPoint{hook.BeforeToolExecution} }
func (h *silentHook) Priority() int            { return 0 }

func (h *silentHook) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	return nil, nil
}

func TestExecutor_HookFailuresStayInResults(t *testing.T) {
	var ran atomic.Int32
	counted := &funcTool{name: "counted", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		ran.Add(1)
		return &Result{Success: true, Output: "done"}, nil
	}}

	before := newTestExecutor(t, counted)
	manager := hook.NewManager()
	manager.Register(&panickyHook{point: hook.BeforeToolExecution})
	before.SetHookManager(manager)

	results := before.Execute(context.Background(), []*llm.ToolCall{call("p", "counted", `{}`)})
	if got := results[0].Result.Error; !strings.Contains(got, "hook blew up") {
		t.Errorf("Expected hook panic as error result, got %+v", results[0].Result)
	}
	if ran.Load() != 0 {
		t.Error("Tool must not run when its before hook fails")
	}

	after := newTestExecutor(t, counted)
	manager = hook.NewManager()
	manager.Register(&silentHook{})
	manager.Register(&panickyHook{point: hook.AfterToolExecution})
	after.SetHookManager(manager)

	results = after.Execute(context.Background(), []*llm.ToolCall{call("s", "counted", `{}`)})
	if !results[0].Result.Success || results[0].Result.Output != "done" {
		t.Errorf("Expected the tool result to survive, got %+v", results[0].Result)
	}
	if ran.Load() != 1 {
		t.Errorf("Expected one execution, got %d", ran.Load())
	}
}

func TestExecutor_RecordsMetrics(t *testing.T) {
	failing := &funcTool{name: "failing", fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
		return nil, errors.New("nope")
	}}
	exec := newTestExecutor(t, okTool("echo"), failing)
	exec.SetMode(ExecutionModeSequential)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())
	exec.SetMeterProvider(provider)

	exec.Execute(context.Background(), []*llm.ToolCall{
		call("1", "echo", `{}`),
		call("2", "echo", `{}`),
		call("3", "failing", `{}`),
		call("4", "made_up", `{}`),
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	calls := map[string]int64{}
	failures := map[string]int64{}
	var histogramCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				target := calls
				if m.Name == "tool.failures" {
					target = failures
				}
				for _, dp := range data.DataPoints {
					name, _ := dp.Attributes.Value("tool.name")
					target[name.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histogramCount += dp.Count
				}
			}
		}
	}

	if calls["echo"] != 2 || calls["failing"] != 1 || calls["unknown"] != 1 {
		t.Errorf("Unexpected call counts %v", calls)
	}
	if failures["failing"] != 1 || failures["unknown"] != 1 || failures["echo"] != 0 {
		t.Errorf("Unexpected failure counts %v", failures)
	}
	if histogramCount != 4 {
		t.Errorf("Expected 4 duration samples, got %d", histogramCount)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]ExecutionMode{
		"":           ExecutionModeMixed,
		"parallel":   ExecutionModeParallel,
		"Sequential": ExecutionModeSequential,
		" mixed ":    ExecutionModeMixed,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("random"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
