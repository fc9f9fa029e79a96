package llm

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role
	Reason     string
	Content    string
	ToolCalls  []*ToolCall
	ToolCallID string
	Name       string
	IsError    bool
	Timestamp  time.Time
}

type ToolCall struct {
	ID       string
	Type     string
	Function *FunctionCall
}

type FunctionCall struct {
	Name      string
	Arguments string
}

type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonLength    StopReason = "length"
	StopReasonToolCalls StopReason = "tool_calls"
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// HasToolCalls reports whether the message requests at least one tool invocation.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy of the message so snapshots never alias live memory.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]*ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the tool call.
func (tc *ToolCall) Clone() *ToolCall {
	if tc == nil {
		return nil
	}
	out := &ToolCall{ID: tc.ID, Type: tc.Type}
	if tc.Function != nil {
		fn := *tc.Function
		out.Function = &fn
	}
	return out
}

// Name returns the requested function name, or "" when the call is incomplete.
func (tc *ToolCall) Name() string {
	if tc == nil || tc.Function == nil {
		return ""
	}
	return tc.Function.Name
}

// Arguments returns the raw JSON arguments, or "" when the call is incomplete.
func (tc *ToolCall) Arguments() string {
	if tc == nil || tc.Function == nil {
		return ""
	}
	return tc.Function.Arguments
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
