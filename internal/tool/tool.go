package tool

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is a capability the agent can invoke by name.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a brief description of what this tool does
	Description() string

	// BestPractices returns usage guidelines for this tool
	// Returns empty string if no special guidance is needed
	BestPractices() string

	// Parameters returns the JSON schema for the tool's parameters
	Parameters() map[string]any

	// Execute runs the tool with arguments that already passed schema
	// validation. A returned error is reported to the model, never to the
	// caller of the run.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Mutator is implemented by tools with side effects. In mixed mode, calls
// issued after a mutating call wait for it to finish.
type Mutator interface {
	Mutates() bool
}

// Result is the outcome of one tool execution. Output and Error are
// mutually exclusive once the executor has normalized the result.
type Result struct {
	Success bool
	Output  string
	Error   string
	Data    map[string]any

	// Terminal asks the agent to finish the run after this cycle.
	Terminal bool
}

// CallResult ties a Result to the tool call that produced it.
type CallResult struct {
	ToolName  string
	CallID    string
	Params    json.RawMessage
	Result    *Result
	StartTime time.Time
	EndTime   time.Time
}

func (c *CallResult) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

// Text returns what the model sees for this call.
func (c *CallResult) Text() string {
	if c.Result == nil {
		return ""
	}
	if !c.Result.Success {
		return "Error: " + c.Result.Error
	}
	return c.Result.Output
}

func mutates(t Tool) bool {
	m, ok := t.(Mutator)
	return ok && m.Mutates()
}
