package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// MockToolWithBestPractices is a mock tool that reports best practices
type MockToolWithBestPractices struct{}

func (t *MockToolWithBestPractices) Name() string {
	return "mock_tool_with_bp"
}

func (t *MockToolWithBestPractices) Description() string {
	return "A mock tool with best practices"
}

func (t *MockToolWithBestPractices) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"param": map[string]any{
				"type": "string",
			},
		},
	}
}

func (t *MockToolWithBestPractices) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return &Result{Success: true, Output: "mock output"}, nil
}

func (t *MockToolWithBestPractices) BestPractices() string {
	return `**Mock Tool Best Practices**:
1. Always use param X
2. Never use param Y
3. Check results carefully`
}

// MockToolWithoutBestPractices is a mock tool that does NOT implement best practices
type MockToolWithoutBestPractices struct{}

func (t *MockToolWithoutBestPractices) Name() string {
	return "mock_tool_without_bp"
}

func (t *MockToolWithoutBestPractices) Description() string {
	return "A mock tool without best practices"
}

func (t *MockToolWithoutBestPractices) BestPractices() string {
	return ""
}

func (t *MockToolWithoutBestPractices) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
	}
}

func (t *MockToolWithoutBestPractices) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return &Result{Success: true, Output: "mock output"}, nil
}

func TestRegistry_GetToolBestPractices_Empty(t *testing.T) {
	registry := NewRegistry()

	// No tools registered
	practices := registry.GetToolBestPractices()
	if practices != "" {
		t.Errorf("Expected empty string when no tools registered, got: %s", practices)
	}
}

func TestRegistry_GetToolBestPractices_NoToolsWithBP(t *testing.T) {
	registry := NewRegistry()

	// Register tool without best practices
	tool := &MockToolWithoutBestPractices{}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	practices := registry.GetToolBestPractices()
	if practices != "" {
		t.Errorf("Expected empty string when no tools have best practices, got: %s", practices)
	}
}

func TestRegistry_GetToolBestPractices_WithBP(t *testing.T) {
	registry := NewRegistry()

	// Register tool with best practices
	tool := &MockToolWithBestPractices{}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	practices := registry.GetToolBestPractices()

	// Should contain header
	if !strings.Contains(practices, "# Tool Usage Best Practices") {
		t.Error("Best practices should contain header")
	}

	// Should contain the mock tool's best practices
	if !strings.Contains(practices, "Mock Tool Best Practices") {
		t.Error("Best practices should contain mock tool's practices")
	}

	if !strings.Contains(practices, "Always use param X") {
		t.Error("Best practices should contain specific practice text")
	}
}

func TestRegistry_GetToolBestPractices_Mixed(t *testing.T) {
	registry := NewRegistry()

	// Register both tools
	tool1 := &MockToolWithBestPractices{}
	tool2 := &MockToolWithoutBestPractices{}

	if err := registry.Register(tool1); err != nil {
		t.Fatalf("Failed to register tool1: %v", err)
	}
	if err := registry.Register(tool2); err != nil {
		t.Fatalf("Failed to register tool2: %v", err)
	}

	practices := registry.GetToolBestPractices()

	// Should contain header
	if !strings.Contains(practices, "# Tool Usage Best Practices") {
		t.Error("Best practices should contain header")
	}

	// Should contain practices from tool with BP
	if !strings.Contains(practices, "Mock Tool Best Practices") {
		t.Error("Best practices should contain mock tool's practices")
	}

	// Should NOT contain references to tool without BP
	if strings.Contains(practices, "mock_tool_without_bp") {
		t.Error("Best practices should not reference tools without best practices")
	}
}

type namedTool struct {
	name   string
	schema map[string]any
}

func (t *namedTool) Name() string               { return t.name }
func (t *namedTool) Description() string        { return "named tool " + t.name }
func (t *namedTool) BestPractices() string      { return "" }
func (t *namedTool) Parameters() map[string]any { return t.schema }

func (t *namedTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return &Result{Success: true, Output: t.name}, nil
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&namedTool{name: "a"}); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}
	if err := registry.Register(&namedTool{name: "a"}); err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 tool, got %d", registry.Len())
	}
}

func TestRegistry_Freeze(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&namedTool{name: "a"}); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	registry.Freeze()
	registry.Freeze()

	if !registry.Frozen() {
		t.Fatal("Registry should report frozen")
	}
	err := registry.Register(&namedTool{name: "b"})
	if !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("Expected ErrRegistryFrozen, got %v", err)
	}
	if _, err := registry.Get("a"); err != nil {
		t.Errorf("Lookups must keep working after freeze: %v", err)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := NewRegistry().Get("missing")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(&namedTool{name: name}); err != nil {
			t.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	for i := 0; i < 5; i++ {
		defs := registry.GetToolDefinitions()
		got := []string{defs[0].Function.Name, defs[1].Function.Name, defs[2].Function.Name}
		if strings.Join(got, ",") != "alpha,mid,zeta" {
			t.Fatalf("Expected sorted definitions, got %v", got)
		}
	}
}

func TestRegistry_InvalidSchemaRejected(t *testing.T) {
	registry := NewRegistry()
	bad := &namedTool{name: "bad", schema: map[string]any{"type": 42}}
	if err := registry.Register(bad); err == nil {
		t.Fatal("Expected invalid schema to be rejected")
	}
}

func TestRegistry_Validate(t *testing.T) {
	registry := NewRegistry()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"path"},
	}
	if err := registry.Register(&namedTool{name: "t", schema: schema}); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"path": "a", "count": 2.0}, false},
		{"missing required", map[string]any{"count": 2.0}, true},
		{"wrong type", map[string]any{"path": 5.0}, true},
		{"below minimum", map[string]any{"path": "a", "count": 0.0}, true},
	}
	for _, tt := range tests {
		err := registry.Validate("t", tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
