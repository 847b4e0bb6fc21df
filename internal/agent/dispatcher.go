package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/conclave/internal/ledger"
	"github.com/haasonsaas/conclave/internal/policy"
	"github.com/haasonsaas/conclave/internal/tools"
	"github.com/haasonsaas/conclave/internal/tools/message"
	"github.com/haasonsaas/conclave/pkg/models"
)

// PendingAction is a gated tool call waiting for a human decision, plus the
// rest of its assistant turn so strict in-order execution can resume.
type PendingAction struct {
	ApprovalID string
	SessionID  string
	Call       models.ToolCall
	Remaining  []models.ToolCall
}

// pendingActions is the in-memory approval queue keyed by approval id,
// preserving insertion order for decision application.
type pendingActions struct {
	mu      sync.Mutex
	actions map[string]*PendingAction
	order   []string
}

func newPendingActions() *pendingActions {
	return &pendingActions{actions: make(map[string]*PendingAction)}
}

func (p *pendingActions) add(action *PendingAction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.actions[action.ApprovalID]; ok {
		return // duplicate enqueue guard
	}
	p.actions[action.ApprovalID] = action
	p.order = append(p.order, action.ApprovalID)
}

func (p *pendingActions) take(approvalID string) (*PendingAction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	action, ok := p.actions[approvalID]
	if !ok {
		return nil, false
	}
	delete(p.actions, approvalID)
	for i, id := range p.order {
		if id == approvalID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return action, true
}

func (p *pendingActions) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *pendingActions) hasSession(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, action := range p.actions {
		if action.SessionID == sessionID {
			return true
		}
	}
	return false
}

func (p *pendingActions) hasCall(sessionID, callID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, action := range p.actions {
		if action.SessionID == sessionID && action.Call.ID == callID {
			return true
		}
	}
	return false
}

// dispatch runs an assistant turn's tool calls in declared order. At the
// first gated call it files an approval request, remembers the suspension
// point, and returns; nothing after the gate runs until a decision lands.
func (a *Advancer) dispatch(ctx context.Context, sessionID string, calls []models.ToolCall) error {
	for i, call := range calls {
		if a.registry.RequiresApproval(call.Name, call.Args) {
			risk := policy.ClassifyToolCall(call.Name, call.Args)
			approvalID, err := a.ledger.Request(sessionID, call.ID, call.Name, call.Args, risk, describeCall(call))
			if err != nil {
				return fmt.Errorf("request approval for %s: %w", call.Name, err)
			}
			a.pending.add(&PendingAction{
				ApprovalID: approvalID,
				SessionID:  sessionID,
				Call:       call,
				Remaining:  append([]models.ToolCall(nil), calls[i+1:]...),
			})
			a.log.Info("approval requested",
				"session", sessionID, "tool", call.Name, "risk", string(risk), "approval", approvalID)
			return nil
		}

		result := a.runCall(ctx, sessionID, call)
		if err := a.store.AppendMessage(sessionID, models.NewToolResultMessage(call.ID, result)); err != nil {
			return err
		}
	}
	return nil
}

// runCall executes one tool call on the safe path. send_message is the one
// tool the dispatcher handles specially: the executor returns an intent and
// the dispatcher performs the privileged cross-session append before the
// originating result is written.
func (a *Advancer) runCall(ctx context.Context, sessionID string, call models.ToolCall) tools.Result {
	result := a.registry.Execute(ctx, call.Name, call.Args)

	if target, content, ok := message.ParseIntent(result); ok {
		targetID, err := a.resolveTarget(target)
		if err != nil {
			return tools.Errorf("send_message: %v", err)
		}
		if err := a.store.AppendMessage(targetID, models.NewUserMessage(content)); err != nil {
			return tools.Errorf("send_message: deliver to %s: %v", targetID, err)
		}
		a.log.Info("routed message", "from", sessionID, "to", targetID)
		return tools.OK("delivered_to", targetID)
	}
	return result
}

// resolveTarget maps a send_message target onto a session: an exact session
// id wins; otherwise the earliest active session of that agent.
func (a *Advancer) resolveTarget(target string) (string, error) {
	if _, err := a.store.ReadSession(target); err == nil {
		return target, nil
	}
	ids, err := a.store.ListSessions()
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		sess, err := a.store.ReadSession(id)
		if err != nil {
			continue
		}
		if sess.AgentID == target && sess.Status == models.StatusActive {
			return id, nil
		}
	}
	return "", fmt.Errorf("no session for %q", target)
}

// Resolve applies a human decision to a suspended tool call: execute on
// approval, record a rejection otherwise, then archive the ledger entry and
// resume the rest of the turn in order.
func (a *Advancer) Resolve(ctx context.Context, entry *ledger.Entry) error {
	if entry.Decision == ledger.StatusPending {
		return nil
	}

	action, ok := a.pending.take(entry.ID)
	if !ok {
		return fmt.Errorf("approval %s: %w", entry.ID, ErrGateViolation)
	}

	var result tools.Result
	if entry.Decision == ledger.StatusApproved {
		result = a.runCall(ctx, action.SessionID, action.Call)
		a.log.Info("approved tool executed",
			"session", action.SessionID, "tool", action.Call.Name, "approval", entry.ID)
	} else {
		result = tools.Result{"success": false, "error": "rejected by operator"}
		if len(entry.Notes) > 0 {
			result["notes"] = strings.Join(entry.Notes, "\n")
		}
		a.log.Info("tool rejected",
			"session", action.SessionID, "tool", action.Call.Name, "approval", entry.ID)
	}

	if err := a.store.AppendMessage(action.SessionID, models.NewToolResultMessage(action.Call.ID, result)); err != nil {
		return err
	}
	if err := a.ledger.Close(entry.ID, entry.Decision); err != nil {
		return err
	}
	return a.dispatch(ctx, action.SessionID, action.Remaining)
}

// Restore repopulates the in-memory queue from a still-pending ledger entry
// after a daemon restart. remaining is the tail of the assistant turn after
// the gated call.
func (a *Advancer) Restore(entry *ledger.Entry, call models.ToolCall, remaining []models.ToolCall) {
	if a.pending.hasCall(entry.SessionID, call.ID) {
		return
	}
	a.pending.add(&PendingAction{
		ApprovalID: entry.ID,
		SessionID:  entry.SessionID,
		Call:       call,
		Remaining:  append([]models.ToolCall(nil), remaining...),
	})
}

// describeCall renders the human-facing ledger description of a proposed
// action.
func describeCall(call models.ToolCall) string {
	switch call.Name {
	case "execute_command":
		return fmt.Sprintf("execute_command: `%s`", argString(call.Args, "command"))
	case "write_file":
		return fmt.Sprintf("write_file: %s (%d bytes)", argString(call.Args, "path"), len(argString(call.Args, "content")))
	case "edit_session":
		return fmt.Sprintf("edit_session: %s", argString(call.Args, "session_file"))
	case "slack_send":
		return fmt.Sprintf("slack_send to %s: %s", argString(call.Args, "channel"), truncate(argString(call.Args, "message"), 80))
	default:
		data, err := json.Marshal(call.Args)
		if err != nil {
			data = []byte("{}")
		}
		return fmt.Sprintf("%s: %s", call.Name, truncate(string(data), 120))
	}
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
