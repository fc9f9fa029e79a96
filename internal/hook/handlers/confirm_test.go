package handlers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"stepwise/internal/hook"
)

func TestBashConfirmHandler(t *testing.T) {
	tests := []struct {
		input string
		allow bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		h := NewBashConfirmHandlerWithIO(strings.NewReader(tt.input), &out).WithoutColor()

		data := hook.NewHookData(hook.BeforeBashCommand, "bash").Set("command", "rm -rf build")
		fb, err := h.Handle(context.Background(), data)
		if err != nil {
			t.Fatalf("Handle(%q) error: %v", tt.input, err)
		}
		if fb.Allow != tt.allow {
			t.Errorf("Handle(%q) allow = %v, want %v", tt.input, fb.Allow, tt.allow)
		}
		if !strings.Contains(out.String(), "rm -rf build") {
			t.Errorf("prompt should show the command, got %q", out.String())
		}
		if strings.Contains(out.String(), "\033[") {
			t.Errorf("prompt should not contain color codes, got %q", out.String())
		}
	}
}

func TestBashConfirmHandler_EmptyCommandAllowed(t *testing.T) {
	var out bytes.Buffer
	h := NewBashConfirmHandlerWithIO(strings.NewReader(""), &out)

	fb, err := h.Handle(context.Background(), hook.NewHookData(hook.BeforeBashCommand, "bash"))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if !fb.Allow {
		t.Error("empty command should be allowed without prompting")
	}
	if out.Len() != 0 {
		t.Errorf("no prompt expected, got %q", out.String())
	}
}

func TestToolConfirmHandler_OnlyListedTools(t *testing.T) {
	var out bytes.Buffer
	h := NewToolConfirmHandlerWithIO(strings.NewReader("n\n"), &out, "write").WithoutColor()

	fb, _ := h.Handle(context.Background(), hook.NewHookData(hook.BeforeToolExecution, "read"))
	if !fb.Allow {
		t.Error("unlisted tool should be allowed")
	}

	data := hook.NewHookData(hook.BeforeToolExecution, "write").Set("params", `{"path":"a.txt"}`)
	fb, _ = h.Handle(context.Background(), data)
	if fb.Allow {
		t.Error("listed tool should be denied on 'n'")
	}
	if fb.Message != "user denied tool execution" {
		t.Errorf("unexpected deny message %q", fb.Message)
	}
	if !strings.Contains(out.String(), `Parameters: {"path":"a.txt"}`) {
		t.Errorf("prompt should show parameters, got %q", out.String())
	}
}
