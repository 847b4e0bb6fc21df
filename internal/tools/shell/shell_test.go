package shell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/conclave/internal/policy"
)

func TestValidateCommand(t *testing.T) {
	cases := []struct {
		name    string
		command string
		want    error
	}{
		{"plain", "ls -la", nil},
		{"empty", "", errEmptyCommand},
		{"whitespace only", "   ", errEmptyCommand},
		{"null byte", "ls\x00-la", errNullByte},
		{"newline", "ls\nrm -rf /", errControlChar},
		{"leading dash", "-rf /", errOptionFirst},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validateCommand(tc.command); !errors.Is(got, tc.want) {
				t.Errorf("validateCommand(%q) = %v, want %v", tc.command, got, tc.want)
			}
		})
	}
}

func TestRequiresApproval(t *testing.T) {
	list := policy.NewAllowlist([]string{"echo *", "pwd"})
	tool := NewExecTool(list, t.TempDir())

	if tool.RequiresApproval(map[string]any{"command": "echo hi"}) {
		t.Error("allowlisted command should not gate")
	}
	if !tool.RequiresApproval(map[string]any{"command": "rm -rf /"}) {
		t.Error("unlisted command must gate")
	}
	if !tool.RequiresApproval(map[string]any{}) {
		t.Error("missing command must gate")
	}
}

func TestExecute(t *testing.T) {
	list := policy.NewAllowlist([]string{"*"})
	tool := NewExecTool(list, t.TempDir())
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		result := tool.Execute(ctx, map[string]any{"command": "echo hello"})
		if !result.Success() {
			t.Fatalf("execute failed: %s", result.Error())
		}
		if result["stdout"] != "hello" {
			t.Errorf("stdout = %q", result["stdout"])
		}
		if result["exit_code"] != 0 {
			t.Errorf("exit_code = %v", result["exit_code"])
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		result := tool.Execute(ctx, map[string]any{"command": "exit 3"})
		if result.Success() {
			t.Error("non-zero exit must fail")
		}
		if result["exit_code"] != 3 {
			t.Errorf("exit_code = %v", result["exit_code"])
		}
	})

	t.Run("stderr captured", func(t *testing.T) {
		result := tool.Execute(ctx, map[string]any{"command": "echo oops >&2"})
		if result["stderr"] != "oops" {
			t.Errorf("stderr = %q", result["stderr"])
		}
	})

	t.Run("unsafe command", func(t *testing.T) {
		result := tool.Execute(ctx, map[string]any{"command": "ls\x00"})
		if result.Success() {
			t.Error("null byte must be rejected before running")
		}
	})

	t.Run("cwd honored", func(t *testing.T) {
		dir := t.TempDir()
		result := tool.Execute(ctx, map[string]any{"command": "pwd", "cwd": dir})
		if !result.Success() {
			t.Fatalf("execute failed: %s", result.Error())
		}
		if got, _ := result["stdout"].(string); got == "" {
			t.Error("pwd produced no output")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		quick := NewExecTool(list, t.TempDir())
		quick.timeout = 50 * time.Millisecond
		result := quick.Execute(ctx, map[string]any{"command": "sleep 5"})
		if result.Success() {
			t.Error("timed-out command must fail")
		}
		if result["error"] != "command timed out" {
			t.Errorf("error = %v", result["error"])
		}
	})
}
