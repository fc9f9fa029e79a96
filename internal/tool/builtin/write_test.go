package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTool_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	params, _ := json.Marshal(map[string]any{"file_path": path, "content": "hello"})

	result, err := NewWriteTool().Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got error: %s", result.Error)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Expected 'hello', got %q", got)
	}
}

func TestWriteTool_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("old content"), 0644); err != nil {
		t.Fatal(err)
	}

	params, _ := json.Marshal(map[string]any{"file_path": path, "content": "new"})
	if _, err := NewWriteTool().Execute(context.Background(), params); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("Expected 'new', got %q", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestWriteTool_IsMutator(t *testing.T) {
	if !NewWriteTool().Mutates() {
		t.Error("write must be reported as mutating")
	}
	if !NewBashTool().Mutates() {
		t.Error("bash must be reported as mutating")
	}
}
