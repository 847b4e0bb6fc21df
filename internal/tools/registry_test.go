package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

// fakeTool is a minimal scripted tool for registry tests.
type fakeTool struct {
	name     string
	schema   json.RawMessage
	gated    bool
	execute  func(ctx context.Context, args map[string]any) Result
	panicMsg string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }

func (f *fakeTool) Schema() json.RawMessage {
	if f.schema != nil {
		return f.schema
	}
	return ObjectSchema(map[string]any{
		"path": map[string]any{"type": "string"},
	}, "path")
}

func (f *fakeTool) RequiresApproval(args map[string]any) bool { return f.gated }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) Result {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.execute != nil {
		return f.execute(ctx, args)
	}
	return OK("path", StringArg(args, "path"))
}

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{name: "probe"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := r.Execute(context.Background(), "probe", map[string]any{"path": "a.txt"})
	if !result.Success() {
		t.Fatalf("execute failed: %s", result.Error())
	}
	if result["path"] != "a.txt" {
		t.Errorf("path = %v", result["path"])
	}
}

func TestRegisterBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&fakeTool{name: "broken", schema: json.RawMessage(`{"type": 42}`)})
	if err == nil {
		t.Fatal("expected schema compilation error")
	}
}

func TestValidateArgs(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{name: "probe"}); err != nil {
		t.Fatal(err)
	}

	t.Run("missing required", func(t *testing.T) {
		result := r.Execute(context.Background(), "probe", map[string]any{})
		if result.Success() {
			t.Error("expected validation failure for missing path")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		result := r.Execute(context.Background(), "probe", map[string]any{"path": 7})
		if result.Success() {
			t.Error("expected validation failure for numeric path")
		}
	})

	t.Run("oversized args", func(t *testing.T) {
		err := r.ValidateArgs("probe", map[string]any{
			"path": strings.Repeat("x", MaxArgsSize+1),
		})
		if err == nil {
			t.Error("expected size limit error")
		}
	})
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), "ghost", nil)
	if result.Success() {
		t.Error("unknown tool must fail")
	}
	if !strings.Contains(result.Error(), "unknown tool") {
		t.Errorf("error = %q", result.Error())
	}
}

func TestExecuteRecoverPanic(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{name: "bomb", panicMsg: "boom"}); err != nil {
		t.Fatal(err)
	}

	result := r.Execute(context.Background(), "bomb", map[string]any{"path": "x"})
	if result.Success() {
		t.Error("panicking tool must report failure")
	}
	if !strings.Contains(result.Error(), "boom") {
		t.Errorf("error = %q", result.Error())
	}
}

func TestRequiresApproval(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeTool{name: "safe"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&fakeTool{name: "risky", gated: true}); err != nil {
		t.Fatal(err)
	}

	if r.RequiresApproval("safe", nil) {
		t.Error("safe tool should not gate")
	}
	if !r.RequiresApproval("risky", nil) {
		t.Error("risky tool should gate")
	}
	if !r.RequiresApproval("unregistered", nil) {
		t.Error("unknown tools must always gate")
	}
}

func TestWireDefinitions(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"beta", "alpha", "gamma"} {
		if err := r.Register(&fakeTool{name: name}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("subset preserves declared order", func(t *testing.T) {
		defs := r.WireDefinitions([]string{"gamma", "alpha", "ghost"})
		if len(defs) != 2 {
			t.Fatalf("defs = %d, want 2 (ghost skipped)", len(defs))
		}
		if defs[0].Function.Name != "gamma" || defs[1].Function.Name != "alpha" {
			t.Errorf("order = %s, %s", defs[0].Function.Name, defs[1].Function.Name)
		}
	})

	t.Run("empty selects all sorted", func(t *testing.T) {
		defs := r.WireDefinitions(nil)
		var got []string
		for _, d := range defs {
			got = append(got, d.Function.Name)
		}
		want := []string{"alpha", "beta", "gamma"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("names = %v, want %v", got, want)
		}
	})
}

func TestResultHelpers(t *testing.T) {
	r := OK("count", 3)
	if !r.Success() || r["count"] != 3 {
		t.Errorf("OK result = %v", r)
	}

	e := Errorf("failed after %d tries", 2)
	if e.Success() {
		t.Error("Errorf must not be success")
	}
	if e.Error() != "failed after 2 tries" {
		t.Errorf("error = %q", e.Error())
	}
}
