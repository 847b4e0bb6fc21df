// Package agent advances sessions: it builds the completion prompt, applies
// the model's reply, dispatches tool calls, and suspends sessions at the
// human approval gate.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/conclave/internal/ledger"
	"github.com/haasonsaas/conclave/internal/llm"
	"github.com/haasonsaas/conclave/internal/store"
	"github.com/haasonsaas/conclave/internal/tools"
	"github.com/haasonsaas/conclave/pkg/models"
)

// ErrGateViolation flags an attempt to run a gated tool without an approval
// record in memory. It is a bug signal, never a normal condition.
var ErrGateViolation = errors.New("gated tool without approval record")

// Advancer is the only component that calls the completion service. One
// Advancer serves all sessions; per-session serialization is the
// orchestrator's job.
type Advancer struct {
	store    *store.Store
	ledger   *ledger.Ledger
	registry *tools.Registry
	client   llm.CompletionClient
	log      *slog.Logger

	pending *pendingActions
}

// New wires an advancer.
func New(s *store.Store, l *ledger.Ledger, reg *tools.Registry, client llm.CompletionClient, log *slog.Logger) *Advancer {
	if log == nil {
		log = slog.Default()
	}
	return &Advancer{
		store:    s,
		ledger:   l,
		registry: reg,
		client:   client,
		log:      log.With("component", "advancer"),
		pending:  newPendingActions(),
	}
}

// PendingApprovalIDs returns the in-memory approval queue in insertion
// order.
func (a *Advancer) PendingApprovalIDs() []string { return a.pending.ids() }

// HasPendingFor reports whether an unresolved approval blocks the session.
func (a *Advancer) HasPendingFor(sessionID string) bool { return a.pending.hasSession(sessionID) }

// Advancable implements the session advancability rule: status active, log
// ends on user or tool_result, and no outstanding approval blocks it.
func (a *Advancer) Advancable(sess *models.Session) bool {
	if sess.Status != models.StatusActive {
		return false
	}
	if !sess.LastRoleAdvancable() {
		return false
	}
	return !a.pending.hasSession(sess.ID)
}

// Step performs one advancement: load, complete, apply. It returns nil both
// on success and when the session simply was not advancable; errors mean
// the caller should log and retry on a later pass.
func (a *Advancer) Step(ctx context.Context, sessionID string) error {
	sess, err := a.store.ReadSession(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrBrokenLog) {
			a.log.Error("broken session log", "session", sessionID, "error", err)
			// Best effort: the file parses as YAML even though the log is
			// inconsistent, so park it permanently.
			_ = a.store.SetStatus(sessionID, models.StatusError)
		}
		return err
	}
	if !a.Advancable(sess) {
		return nil
	}
	if a.finishedPlannerTurn(sess) {
		a.log.Debug("turn complete after create_task", "session", sessionID)
		return nil
	}

	toolChoice := a.toolChoice(sess)
	wire := store.MessagesForCompletion(sess)
	defs := a.registry.WireDefinitions(sess.Tools)

	reply, err := a.client.Complete(ctx, sess.Model, wire, defs, toolChoice)
	if err != nil {
		// Leave the session unchanged; the next file change or tick retries.
		return fmt.Errorf("advance %s: %w", sessionID, err)
	}

	switch {
	case len(reply.ToolCalls) > 0:
		calls := make([]models.ToolCall, 0, len(reply.ToolCalls))
		for _, tc := range reply.ToolCalls {
			calls = append(calls, models.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: store.ParseWireArgs(tc.Function.Arguments),
			})
		}
		if err := a.store.AppendMessage(sessionID, models.NewAssistantMessage(reply.Content, calls)); err != nil {
			return err
		}
		return a.dispatch(ctx, sessionID, calls)

	case reply.Content != "":
		return a.store.AppendMessage(sessionID, models.NewAssistantMessage(reply.Content, nil))

	default:
		a.log.Error("empty completion reply", "session", sessionID)
		if err := a.store.AppendMessage(sessionID, models.NewAssistantMessage(
			"[orchestrator] completion service returned an empty reply", nil)); err != nil {
			return err
		}
		return a.store.SetStatus(sessionID, models.StatusError)
	}
}

// finishedPlannerTurn implements the tool_choice heuristic's stop
// condition: a user message arriving right after a successful create_task
// means the planner-style agent already handed the work off.
func (a *Advancer) finishedPlannerTurn(sess *models.Session) bool {
	last := sess.LastMessage()
	if last == nil || last.Role != models.RoleUser {
		return false
	}
	name, result, ok := sess.LastCompletedToolName()
	if !ok {
		return false
	}
	return name == "create_task" && models.ResultSuccess(result)
}

// toolChoice resolves the wire tool_choice for this step. Templates may pin
// a value via metadata; otherwise the heuristic defaults to auto.
func (a *Advancer) toolChoice(sess *models.Session) string {
	switch sess.MetadataString("tool_choice") {
	case llm.ToolChoiceRequired:
		return llm.ToolChoiceRequired
	case llm.ToolChoiceNone:
		return llm.ToolChoiceNone
	default:
		return llm.ToolChoiceAuto
	}
}
