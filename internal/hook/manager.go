package hook

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultHistorySize is the number of events a Manager remembers.
const DefaultHistorySize = 1000

type managerKey struct{}

// ContextWithManager returns a context carrying m. Tools that fire their
// own hook points, such as bash, read it back with ManagerFromContext.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// ManagerFromContext returns the manager stored by ContextWithManager, or nil.
func ManagerFromContext(ctx context.Context) *Manager {
	m, _ := ctx.Value(managerKey{}).(*Manager)
	return m
}

// Event is a record of one triggered hook point.
type Event struct {
	Data    *HookData
	Allowed bool
	Err     error
}

// Manager manages hook handlers and triggers. A nil *Manager allows
// everything and records nothing.
type Manager struct {
	handlers   map[HookPoint][]Handler
	history    []Event
	maxHistory int
	mu         sync.RWMutex
}

// NewManager creates a new hook manager
func NewManager() *Manager {
	return &Manager{
		handlers:   make(map[HookPoint][]Handler),
		maxHistory: DefaultHistorySize,
	}
}

// Register adds a handler to the manager
func (m *Manager) Register(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, point := range handler.Points() {
		m.handlers[point] = append(m.handlers[point], handler)
		// Higher priority first; registration order breaks ties.
		sort.SliceStable(m.handlers[point], func(i, j int) bool {
			return m.handlers[point][i].Priority() > m.handlers[point][j].Priority()
		})
	}
}

// Trigger executes all handlers for a hook point
// Returns the combined feedback - if any handler denies, the result denies
func (m *Manager) Trigger(ctx context.Context, data *HookData) (*Feedback, error) {
	if m == nil {
		return AllowFeedback(), nil
	}

	m.mu.RLock()
	handlers := m.handlers[data.Point]
	m.mu.RUnlock()

	feedback, err := m.run(ctx, handlers, data)
	m.record(Event{Data: data, Allowed: err == nil && feedback.Allow, Err: err})
	return feedback, err
}

func (m *Manager) run(ctx context.Context, handlers []Handler, data *HookData) (*Feedback, error) {
	for _, handler := range handlers {
		feedback, err := handle(ctx, handler, data)
		if err != nil {
			return nil, err
		}
		if feedback == nil {
			continue
		}

		// If handler denies, stop and return
		if !feedback.Allow {
			return feedback, nil
		}

		// If handler modified data, update for next handler
		if feedback.Modified != nil {
			data.Data["_modified"] = feedback.Modified
		}
	}

	return AllowFeedback(), nil
}

// handle runs one handler, reporting a panic as an error.
func handle(ctx context.Context, handler Handler, data *HookData) (feedback *Feedback, err error) {
	defer func() {
		if r := recover(); r != nil {
			feedback, err = nil, fmt.Errorf("hook %s panicked: %v", handler.Name(), r)
		}
	}()
	return handler.Handle(ctx, data)
}

// Notify triggers a hook point whose outcome cannot change anything, such
// as after-execution and lifecycle events. Denials and errors are recorded
// in the history only.
func (m *Manager) Notify(ctx context.Context, data *HookData) {
	_, _ = m.Trigger(ctx, data)
}

func (m *Manager) record(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, ev)
	if over := len(m.history) - m.maxHistory; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
}

// History returns the recorded events, oldest first.
func (m *Manager) History() []Event {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.history...)
}

// SetHistorySize changes how many events are kept. n <= 0 disables history.
func (m *Manager) SetHistorySize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		n = 0
	}
	m.maxHistory = n
	if len(m.history) > n {
		m.history = append(m.history[:0:0], m.history[len(m.history)-n:]...)
	}
}

// HasHandlers checks if there are handlers for a hook point
func (m *Manager) HasHandlers(point HookPoint) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[point]) > 0
}

// ListHandlers returns handler names for a hook point
func (m *Manager) ListHandlers(point HookPoint) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	handlers := m.handlers[point]
	names := make([]string, len(handlers))
	for i, h := range handlers {
		names[i] = h.Name()
	}
	return names
}
