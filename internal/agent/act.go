package agent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stepwise/internal/llm"
	"stepwise/internal/memory"
	"stepwise/internal/tool"
)

// actOutcome is what one Act step observed.
type actOutcome struct {
	Results []*tool.CallResult

	// Terminated is set when a terminate call succeeded; Answer is its output
	// and Status the status it reported, if any.
	Terminated bool
	Answer     string
	Status     string
}

// act executes the tool calls of the latest assistant message and appends
// one tool message per call, in completion order. Only a memory contract
// violation is returned as an error; tool failures become observations.
func act(ctx context.Context, ec *ExecutionContext, mem *memory.Store, calls []*llm.ToolCall) (*actOutcome, error) {
	ctx, span := ec.Tracer.Start(ctx, "agent.act", trace.WithAttributes(
		attribute.Int("agent.step", ec.CurrentStep),
		attribute.Int("agent.act.calls", len(calls)),
	))
	defer span.End()

	if len(calls) > 1 {
		ec.Logger.Info("Executing %s", ec.Executor.DescribePlan(calls))
	}
	for _, tc := range calls {
		ec.LogToolCall(tc.Name(), tc.Arguments())
	}

	results := ec.Executor.Execute(ctx, calls)

	out := &actOutcome{Results: results}
	failed := 0
	for _, cr := range results {
		ec.LogToolResult(cr)
		if !cr.Result.Success {
			failed++
		}

		err := mem.Append(llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: cr.CallID,
			Name:       cr.ToolName,
			Content:    cr.Text(),
			IsError:    !cr.Result.Success,
			Timestamp:  cr.EndTime,
		})
		if err != nil {
			span.RecordError(err)
			return out, err
		}

		if cr.Result.Terminal && cr.Result.Success && !out.Terminated {
			out.Terminated = true
			out.Answer = cr.Result.Output
			out.Status, _ = cr.Result.Data["status"].(string)
		}
	}

	span.SetAttributes(attribute.Int("agent.act.failed", failed))
	return out, nil
}
