package builtin

import (
	"context"
	"testing"
)

func TestTerminateTool_SetsTerminal(t *testing.T) {
	tool := NewTerminateTool()

	result, err := tool.Execute(context.Background(), []byte(`{"answer": "all done"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success || !result.Terminal {
		t.Fatalf("Expected successful terminal result, got %+v", result)
	}
	if result.Output != "all done" {
		t.Errorf("Expected answer as output, got %q", result.Output)
	}
	if result.Data["status"] != "success" {
		t.Errorf("Expected default status success, got %v", result.Data["status"])
	}
}

func TestTerminateTool_EmptyAnswer(t *testing.T) {
	result, err := NewTerminateTool().Execute(context.Background(), []byte(`{"answer": "  "}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Success || result.Terminal {
		t.Error("Empty answer must not terminate the run")
	}
}
