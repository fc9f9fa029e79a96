package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"stepwise/internal/llm"
	"stepwise/internal/logger"
)

func newTestContext(client llm.Client) *ExecutionContext {
	return &ExecutionContext{
		RunID:       "run-test",
		Client:      client,
		Logger:      logger.Discard(),
		Tracer:      otel.Tracer("test"),
		Limits:      DefaultLimits(),
		Retry:       fastRetry(),
		CurrentStep: 1,
	}
}

func TestThink_IdenticalSnapshotIdenticalCalls(t *testing.T) {
	client := &scriptedClient{respond: func(n int, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return callTools(
			call("call_a", "read", `{"path":"`+last+`"}`),
			call("call_b", "glob", `{"pattern":"*.go"}`),
		), nil
	}}
	ec := newTestContext(client)
	snapshot := []llm.Message{{Role: llm.RoleUser, Content: "main.go"}}

	first, err := think(context.Background(), ec, snapshot)
	require.NoError(t, err)
	second, err := think(context.Background(), ec, snapshot)
	require.NoError(t, err)

	assert.Equal(t, first.ToolCalls, second.ToolCalls)
	assert.Equal(t, llm.RoleAssistant, first.Role)
	assert.Equal(t, "main.go", snapshot[0].Content)
}

func TestThink_DoesNotRetryCancellation(t *testing.T) {
	client := &scriptedClient{respond: func(n int, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, context.Canceled
	}}
	_, err := think(context.Background(), newTestContext(client), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.Calls())
}

func TestCandidate(t *testing.T) {
	t.Run("final answer", func(t *testing.T) {
		msg, err := candidate("stub", answer("done"))
		require.NoError(t, err)
		assert.Equal(t, "done", msg.Content)
	})

	t.Run("fills missing ids and arguments", func(t *testing.T) {
		msg, err := candidate("stub", callTools(call("", "read", ""), call("", "read", `{"path":"a"}`)))
		require.NoError(t, err)
		require.Len(t, msg.ToolCalls, 2)
		assert.NotEmpty(t, msg.ToolCalls[0].ID)
		assert.NotEqual(t, msg.ToolCalls[0].ID, msg.ToolCalls[1].ID)
		assert.Equal(t, "{}", msg.ToolCalls[0].Arguments())
		assert.Equal(t, "function", msg.ToolCalls[0].Type)
	})

	t.Run("does not alias the response", func(t *testing.T) {
		resp := callTools(call("", "read", `{}`))
		msg, err := candidate("stub", resp)
		require.NoError(t, err)
		assert.Empty(t, resp.Message.ToolCalls[0].ID)
		assert.NotEmpty(t, msg.ToolCalls[0].ID)
	})

	malformed := map[string]*llm.ChatResponse{
		"nil response":      nil,
		"empty message":     {Message: llm.Message{Role: llm.RoleAssistant}},
		"missing name":      callTools(call("call_1", "", `{}`)),
		"nil call":          callTools(nil),
		"invalid arguments": callTools(call("call_1", "read", `{"path":`)),
		"duplicate ids":     callTools(call("call_1", "read", `{}`), call("call_1", "glob", `{}`)),
	}
	for name, resp := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := candidate("stub", resp)
			require.Error(t, err)
			assert.True(t, llm.IsRetryable(err))
			assert.Contains(t, err.Error(), "malformed response")
		})
	}
}
