package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stepwise/internal/llm"
	"stepwise/internal/retry"
)

const truncationNotice = "\n[Response truncated due to length limit]"

// think asks the reasoning provider for the next move. It never touches
// memory: the returned message is a candidate the run loop appends.
// Every attempt sends its own copy of the same snapshot.
func think(ctx context.Context, ec *ExecutionContext, snapshot []llm.Message) (llm.Message, error) {
	ctx, span := ec.Tracer.Start(ctx, "agent.think", trace.WithAttributes(
		attribute.Int("agent.step", ec.CurrentStep),
		attribute.Int("agent.messages", len(snapshot)),
	))
	defer span.End()

	policy := ec.Retry
	policy.Retryable = llm.IsRetryable
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		ec.Logger.Warn("Think attempt %d/%d failed, retrying in %s: %v",
			attempt, policy.MaxAttempts, delay.Round(time.Millisecond), err)
	}

	attempts := 0
	msg, err := retry.Do(ctx, policy, func(ctx context.Context) (llm.Message, error) {
		attempts++
		resp, err := ec.Client.Chat(ctx, &llm.ChatRequest{
			Messages:    llm.CloneMessages(snapshot),
			Tools:       ec.Tools,
			Temperature: ec.Temperature,
			MaxTokens:   ec.MaxTokens,
		})
		if err != nil {
			return llm.Message{}, err
		}
		return candidate(ec.Client.Provider(), resp)
	})

	span.SetAttributes(attribute.Int("agent.think.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.Message{}, err
	}
	span.SetAttributes(attribute.Int("agent.think.tool_calls", len(msg.ToolCalls)))
	return msg, nil
}

// candidate turns a provider response into an assistant message, or a
// retryable error when the response cannot be used.
func candidate(provider string, resp *llm.ChatResponse) (llm.Message, error) {
	if resp == nil {
		return llm.Message{}, llm.Malformed(provider, "empty response")
	}

	msg := resp.Message.Clone()
	msg.Role = llm.RoleAssistant
	msg.ToolCallID = ""
	msg.IsError = false

	if !msg.HasToolCalls() {
		if msg.Content == "" {
			return llm.Message{}, llm.Malformed(provider, "no content and no tool calls")
		}
		if resp.StopReason == llm.StopReasonLength {
			msg.Content += truncationNotice
		}
		return msg, nil
	}

	seen := make(map[string]bool, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		if tc == nil || tc.Name() == "" {
			return llm.Message{}, llm.Malformed(provider, "tool call %d has no name", i)
		}
		if args := tc.Arguments(); args == "" {
			tc.Function.Arguments = "{}"
		} else if !json.Valid([]byte(args)) {
			return llm.Message{}, llm.Malformed(provider, "tool call %d (%s) has invalid JSON arguments", i, tc.Name())
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if seen[tc.ID] {
			return llm.Message{}, llm.Malformed(provider, "duplicate tool call id %q", tc.ID)
		}
		seen[tc.ID] = true
		if tc.Type == "" {
			tc.Type = "function"
		}
	}
	return msg, nil
}
