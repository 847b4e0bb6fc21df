package agent

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/conclave/internal/ledger"
	"github.com/haasonsaas/conclave/pkg/models"
)

func TestSendMessageRouting(t *testing.T) {
	h := newHarness(t)
	origin := h.newSession(t, "worker-1", "tell worker-2 to start")
	target := h.newSession(t, "worker-2", "")

	h.client.replies = []openai.ChatCompletionMessage{
		toolReply(wireCall("call_1", "send_message", map[string]any{
			"agent_id": "worker-2",
			"content":  "start the batch job",
		})),
	}

	if err := h.adv.Step(context.Background(), origin); err != nil {
		t.Fatalf("step: %v", err)
	}

	// The target session received the content as user input.
	targetSess := h.readSession(t, target)
	if len(targetSess.Messages) != 1 {
		t.Fatalf("target messages = %d, want 1", len(targetSess.Messages))
	}
	delivered := targetSess.Messages[0]
	if delivered.Role != models.RoleUser || delivered.Content != "start the batch job" {
		t.Errorf("delivered = %+v", delivered)
	}
	if !h.adv.Advancable(targetSess) {
		t.Error("target should be advancable after delivery")
	}

	// The origin result records where the message went.
	originSess := h.readSession(t, origin)
	last := originSess.LastMessage()
	if last.Role != models.RoleToolResult || last.ToolCallID != "call_1" {
		t.Fatalf("origin last = %+v", last)
	}
	if last.Result["delivered_to"] != target {
		t.Errorf("delivered_to = %v", last.Result["delivered_to"])
	}
}

func TestSendMessageByAgentID(t *testing.T) {
	h := newHarness(t)
	// Two sessions of the same agent: the earliest active one wins.
	early := h.newSession(t, "worker-a", "")
	h.newSession(t, "worker-b", "")
	if err := h.store.SetStatus(early, models.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	id, err := h.adv.resolveTarget("worker")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "worker-b" {
		t.Errorf("target = %q, want worker-b (earliest active)", id)
	}

	t.Run("exact session id wins", func(t *testing.T) {
		id, err := h.adv.resolveTarget("worker-a")
		if err != nil {
			t.Fatal(err)
		}
		if id != "worker-a" {
			t.Errorf("target = %q", id)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		if _, err := h.adv.resolveTarget("nobody"); err == nil {
			t.Error("expected error for unresolvable target")
		}
	})
}

func TestSendMessageUnresolvableTarget(t *testing.T) {
	h := newHarness(t)
	origin := h.newSession(t, "worker-1", "message nobody")
	h.client.replies = []openai.ChatCompletionMessage{
		toolReply(wireCall("call_1", "send_message", map[string]any{
			"agent_id": "nobody",
			"content":  "hello?",
		})),
	}

	if err := h.adv.Step(context.Background(), origin); err != nil {
		t.Fatalf("step: %v", err)
	}

	last := h.readSession(t, origin).LastMessage()
	if last.Role != models.RoleToolResult {
		t.Fatalf("last = %+v", last)
	}
	if models.ResultSuccess(last.Result) {
		t.Error("delivery to an unknown target must fail")
	}
}

func TestResolveWithoutPendingIsGateViolation(t *testing.T) {
	h := newHarness(t)

	entry := &ledger.Entry{
		ID:        "ap-ghost",
		SessionID: "worker-1",
		Decision:  ledger.StatusApproved,
	}
	err := h.adv.Resolve(context.Background(), entry)
	if !errors.Is(err, ErrGateViolation) {
		t.Errorf("err = %v, want ErrGateViolation", err)
	}
}

func TestResolvePendingDecisionIsNoop(t *testing.T) {
	h := newHarness(t)
	entry := &ledger.Entry{ID: "ap-1", Decision: ledger.StatusPending}
	if err := h.adv.Resolve(context.Background(), entry); err != nil {
		t.Errorf("pending decision must be a no-op, got %v", err)
	}
}

func TestRestoreDedupes(t *testing.T) {
	h := newHarness(t)
	call := models.ToolCall{ID: "call_1", Name: "risky"}
	entry := &ledger.Entry{ID: "ap-1", SessionID: "worker-1"}

	h.adv.Restore(entry, call, nil)
	h.adv.Restore(entry, call, nil)

	if ids := h.adv.PendingApprovalIDs(); len(ids) != 1 {
		t.Errorf("pending = %v, want one entry", ids)
	}
	if !h.adv.HasPendingFor("worker-1") {
		t.Error("session should be blocked")
	}
}

func TestPendingActionsQueue(t *testing.T) {
	p := newPendingActions()
	p.add(&PendingAction{ApprovalID: "ap-1", SessionID: "s1", Call: models.ToolCall{ID: "c1"}})
	p.add(&PendingAction{ApprovalID: "ap-2", SessionID: "s2", Call: models.ToolCall{ID: "c2"}})

	if ids := p.ids(); len(ids) != 2 || ids[0] != "ap-1" || ids[1] != "ap-2" {
		t.Errorf("ids = %v", ids)
	}
	if !p.hasCall("s1", "c1") || p.hasCall("s1", "c2") {
		t.Error("hasCall lookup wrong")
	}

	action, ok := p.take("ap-1")
	if !ok || action.SessionID != "s1" {
		t.Fatalf("take = %+v, %v", action, ok)
	}
	if _, ok := p.take("ap-1"); ok {
		t.Error("double take must fail")
	}
	if p.hasSession("s1") {
		t.Error("s1 should be unblocked")
	}
	if !p.hasSession("s2") {
		t.Error("s2 should still be blocked")
	}
}

func TestDescribeCall(t *testing.T) {
	cases := []struct {
		name string
		call models.ToolCall
		want string
	}{
		{
			"shell",
			models.ToolCall{Name: "execute_command", Args: map[string]any{"command": "rm -rf build"}},
			"execute_command: `rm -rf build`",
		},
		{
			"write",
			models.ToolCall{Name: "write_file", Args: map[string]any{"path": "a.txt", "content": "hello"}},
			"write_file: a.txt (5 bytes)",
		},
		{
			"session edit",
			models.ToolCall{Name: "edit_session", Args: map[string]any{"session_file": "worker-1.session.yaml"}},
			"edit_session: worker-1.session.yaml",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := describeCall(tc.call); got != tc.want {
				t.Errorf("describeCall = %q, want %q", got, tc.want)
			}
		})
	}
}
