package builtin

import (
	"fmt"

	"stepwise/internal/tool"
)

// Names lists every builtin tool in registration order.
var Names = []string{"read", "write", "bash", "glob", "grep", TerminateName}

// New returns the builtin tool with the given name.
func New(name string) (tool.Tool, error) {
	switch name {
	case "read":
		return NewReadTool(), nil
	case "write":
		return NewWriteTool(), nil
	case "bash":
		return NewBashTool(), nil
	case "glob":
		return NewGlobTool(), nil
	case "grep":
		return NewGrepTool(), nil
	case TerminateName:
		return NewTerminateTool(), nil
	default:
		return nil, fmt.Errorf("unknown builtin tool %q", name)
	}
}

// Register adds the named builtins to r. An empty list registers all of them.
func Register(r *tool.Registry, names ...string) error {
	if len(names) == 0 {
		names = Names
	}
	for _, name := range names {
		t, err := New(name)
		if err != nil {
			return err
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
