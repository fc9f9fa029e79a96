package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stepwise/internal/hook"
)

// CircuitBreakerHandler denies a tool after Threshold consecutive failed
// calls. Once Cooldown has passed, a single trial call is let through:
// success closes the circuit, failure opens it again. A zero Cooldown keeps
// a tripped tool closed off for the handler's lifetime.
type CircuitBreakerHandler struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	tools map[string]*circuit
}

type circuit struct {
	failures int
	open     bool
	openedAt time.Time
}

func NewCircuitBreakerHandler(threshold int, cooldown time.Duration) *CircuitBreakerHandler {
	return &CircuitBreakerHandler{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		tools:     make(map[string]*circuit),
	}
}

func (h *CircuitBreakerHandler) Name() string {
	return "circuit_breaker"
}

func (h *CircuitBreakerHandler) Points() []hook.HookPoint {
	return []hook.HookPoint{hook.BeforeToolExecution, hook.AfterToolExecution}
}

// Priority places the breaker ahead of confirmation prompts.
func (h *CircuitBreakerHandler) Priority() int {
	return 200
}

func (h *CircuitBreakerHandler) Handle(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.tools[data.ToolName]
	if c == nil {
		c = &circuit{}
		h.tools[data.ToolName] = c
	}

	switch data.Point {
	case hook.BeforeToolExecution:
		if !c.open {
			return hook.AllowFeedback(), nil
		}
		now := h.now()
		if h.cooldown > 0 && now.Sub(c.openedAt) >= h.cooldown {
			// Trial call; concurrent calls stay denied until it reports back.
			c.openedAt = now
			return hook.AllowFeedback(), nil
		}
		return hook.DenyFeedback(fmt.Sprintf("circuit open: %s failed %d times in a row", data.ToolName, c.failures)), nil

	case hook.AfterToolExecution:
		success, _ := data.Get("success").(bool)
		if success {
			*c = circuit{}
			return hook.AllowFeedback(), nil
		}
		c.failures++
		if c.open || (h.threshold > 0 && c.failures >= h.threshold) {
			c.open = true
			c.openedAt = h.now()
		}
	}
	return hook.AllowFeedback(), nil
}

// Open reports whether calls to the named tool are currently denied.
func (h *CircuitBreakerHandler) Open(toolName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.tools[toolName]
	return c != nil && c.open
}
