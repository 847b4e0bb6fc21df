package message

import (
	"context"
	"testing"

	"github.com/haasonsaas/conclave/internal/tools"
)

func TestSendToolExecute(t *testing.T) {
	tool := NewSendTool()

	if tool.RequiresApproval(nil) {
		t.Error("send_message must not gate")
	}

	result := tool.Execute(context.Background(), map[string]any{
		"agent_id": "retriever",
		"content":  "find the deployment runbook",
	})
	if !result.Success() {
		t.Fatalf("execute failed: %s", result.Error())
	}
	if result[IntentKey] != IntentSend {
		t.Errorf("intent = %v", result[IntentKey])
	}

	t.Run("missing target", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]any{"content": "hi"})
		if result.Success() {
			t.Error("empty agent_id must fail")
		}
	})

	t.Run("missing content", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]any{"agent_id": "retriever"})
		if result.Success() {
			t.Error("empty content must fail")
		}
	})

	t.Run("target trimmed", func(t *testing.T) {
		result := tool.Execute(context.Background(), map[string]any{
			"agent_id": "  retriever  ",
			"content":  "hi",
		})
		if result["agent_id"] != "retriever" {
			t.Errorf("agent_id = %v", result["agent_id"])
		}
	})
}

func TestParseIntent(t *testing.T) {
	target, content, ok := ParseIntent(tools.Result{
		"success":  true,
		IntentKey:  IntentSend,
		"agent_id": "executor-1",
		"content":  "run the migration",
	})
	if !ok {
		t.Fatal("expected a send intent")
	}
	if target != "executor-1" || content != "run the migration" {
		t.Errorf("target=%q content=%q", target, content)
	}

	t.Run("not an intent", func(t *testing.T) {
		if _, _, ok := ParseIntent(tools.OK()); ok {
			t.Error("plain success record is not an intent")
		}
	})

	t.Run("intent without target", func(t *testing.T) {
		if _, _, ok := ParseIntent(tools.Result{IntentKey: IntentSend}); ok {
			t.Error("intent without target must not parse")
		}
	})
}
