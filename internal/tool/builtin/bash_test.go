package builtin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"stepwise/internal/hook"
)

func TestBashTool_SuccessWithOutput(t *testing.T) {
	tool := NewBashTool()

	params, _ := json.Marshal(map[string]any{
		"command": "echo 'hello world'",
	})

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got error: %s", result.Error)
	}

	if !strings.Contains(result.Output, "hello world") {
		t.Errorf("Expected output to contain 'hello world', got: %s", result.Output)
	}
}

func TestBashTool_SuccessWithNoOutput(t *testing.T) {
	tool := NewBashTool()

	// Command that produces no output (true command)
	params, _ := json.Marshal(map[string]any{
		"command": "true",
	})

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got error: %s", result.Error)
	}

	// Providers reject empty tool content.
	if result.Output == "" {
		t.Error("Output should not be empty - this causes LLM API errors")
	}

	// Should have a placeholder message
	expectedMsg := "(Command executed successfully with no output)"
	if result.Output != expectedMsg {
		t.Errorf("Expected placeholder message, got: %s", result.Output)
	}
}

func TestBashTool_SuccessWithEmptyOutput(t *testing.T) {
	tool := NewBashTool()

	// Command that explicitly produces no output
	params, _ := json.Marshal(map[string]any{
		"command": "ls /nonexistent_directory_that_does_not_exist 2>/dev/null || true",
	})

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got error: %s", result.Error)
	}

	// Output should not be empty
	if result.Output == "" {
		t.Error("Output should not be empty - this causes LLM API errors")
	}
}

func TestBashTool_Failure(t *testing.T) {
	tool := NewBashTool()

	// Command that fails
	params, _ := json.Marshal(map[string]any{
		"command": "exit 1",
	})

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure for 'exit 1' command")
	}

	if result.Error == "" {
		t.Error("Expected error message")
	}
}

func TestBashTool_InvalidParameters(t *testing.T) {
	tool := NewBashTool()

	// Invalid JSON
	result, err := tool.Execute(context.Background(), []byte("invalid json"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure for invalid JSON")
	}

	if !strings.Contains(result.Error, "invalid parameters") {
		t.Errorf("Expected 'invalid parameters' error, got: %s", result.Error)
	}
}

func TestBashTool_Timeout(t *testing.T) {
	tool := NewBashTool()

	// Command that should timeout (sleep 10 seconds with 100ms timeout)
	params, _ := json.Marshal(map[string]any{
		"command": "sleep 10",
		"timeout": 100,
	})

	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure due to timeout")
	}

	if result.Error == "" {
		t.Error("Expected timeout error message")
	}
}

func TestBashTool_DeniedByHook(t *testing.T) {
	manager := hook.NewManager()
	manager.Register(&hook.Func{
		HandlerName: "deny_rm",
		On:          []hook.HookPoint{hook.BeforeBashCommand},
		Fn: func(ctx context.Context, data *hook.HookData) (*hook.Feedback, error) {
			if strings.HasPrefix(data.GetString("command"), "rm ") {
				return hook.DenyFeedback("rm is not allowed"), nil
			}
			return hook.AllowFeedback(), nil
		},
	})
	ctx := hook.ContextWithManager(context.Background(), manager)

	params, _ := json.Marshal(map[string]any{"command": "rm -rf /tmp/nothing"})
	result, err := NewBashTool().Execute(ctx, params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Success {
		t.Fatal("Expected command to be denied")
	}
	if result.Error != "denied: rm is not allowed" {
		t.Errorf("Unexpected error: %s", result.Error)
	}

	params, _ = json.Marshal(map[string]any{"command": "echo ok"})
	result, _ = NewBashTool().Execute(ctx, params)
	if !result.Success {
		t.Errorf("Expected allowed command to succeed, got: %s", result.Error)
	}
}

func TestBashTool_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	params, _ := json.Marshal(map[string]any{"command": "pwd"})

	result, err := NewBashTool().WithDir(dir).Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, filepath.Base(dir)) {
		t.Errorf("Expected pwd to report %s, got %s", dir, result.Output)
	}
}
