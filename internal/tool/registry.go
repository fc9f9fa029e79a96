package tool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"stepwise/internal/llm"
)

var (
	ErrToolNotFound   = errors.New("unknown tool")
	ErrRegistryFrozen = errors.New("registry is frozen")
)

type entry struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// Registry maps tool names to tools. Once frozen it rejects registrations,
// which keeps the tool set stable for the duration of a run.
type Registry struct {
	tools  map[string]*entry
	frozen bool
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if r.frozen {
		return fmt.Errorf("register %s: %w", name, ErrRegistryFrozen)
	}
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	schema, err := compileSchema(tool.Parameters())
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.tools[name] = &entry{tool: tool, schema: schema}
	return nil
}

// Freeze makes the registry read-only. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return e.tool, nil
}

// Validate checks decoded arguments against the named tool's schema.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	e, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.schema.Validate(args)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})
	return tools
}

// GetToolDefinitions returns the schema list offered to the model, in a
// stable order.
func (r *Registry) GetToolDefinitions() []*llm.ToolDefinition {
	tools := r.List()
	defs := make([]*llm.ToolDefinition, len(tools))

	for i, t := range tools {
		defs[i] = &llm.ToolDefinition{
			Type: "function",
			Function: &llm.FunctionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	}

	return defs
}

// GetToolBestPractices collects best practices from all registered tools.
func (r *Registry) GetToolBestPractices() string {
	var practices []string
	for _, t := range r.List() {
		if bp := t.BestPractices(); bp != "" {
			practices = append(practices, bp)
		}
	}

	if len(practices) == 0 {
		return ""
	}

	return "# Tool Usage Best Practices\n\n" + strings.Join(practices, "\n\n")
}
