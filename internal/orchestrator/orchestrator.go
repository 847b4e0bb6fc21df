// Package orchestrator drives the system: it discovers sessions needing
// work, hands them to the advancer, reacts to approval decisions, and emits
// planner check-ins. It runs either as a persistent watch loop or as a
// single deterministic pump pass.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/conclave/internal/agent"
	"github.com/haasonsaas/conclave/internal/config"
	"github.com/haasonsaas/conclave/internal/ledger"
	"github.com/haasonsaas/conclave/internal/store"
	"github.com/haasonsaas/conclave/pkg/models"
)

// Orchestrator owns the event loop state: the set of sessions currently
// being advanced and the handles to every collaborator.
type Orchestrator struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *ledger.Ledger
	advancer *agent.Advancer
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	processing map[string]bool
}

// New wires an orchestrator.
func New(cfg *config.Config, s *store.Store, l *ledger.Ledger, adv *agent.Advancer, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      s,
		ledger:     l,
		advancer:   adv,
		log:        log.With("component", "orchestrator"),
		now:        func() time.Time { return time.Now().UTC() },
		processing: make(map[string]bool),
	}
}

// WithClock overrides the wall clock (tests).
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Pump runs exactly one reconciliation pass: check-in evaluation, pending
// rebuild, decision scan, then one advancement attempt per session. Used
// for deterministic testing and cron-style operation.
func (o *Orchestrator) Pump(ctx context.Context) error {
	if _, err := o.EvaluateCheckin(); err != nil {
		o.log.Warn("check-in evaluation failed", "error", err)
	}
	if err := o.Reconcile(); err != nil {
		return err
	}
	o.scanDecisions(ctx)
	o.Sweep(ctx)
	return nil
}

// Sweep attempts one advancement for every session on disk. Besides the
// pump pass, the watch loop runs it on the periodic tick: a completion
// failure leaves the session file untouched, so no fs event would ever
// retry it.
func (o *Orchestrator) Sweep(ctx context.Context) {
	ids, err := o.store.ListSessions()
	if err != nil {
		o.log.Warn("session sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		o.advanceSession(ctx, id)
	}
}

// advanceSession runs one advancement attempt with the reentrancy guard.
// Errors are logged, never propagated: a per-session fault must not stop
// the loop.
func (o *Orchestrator) advanceSession(ctx context.Context, sessionID string) {
	if !o.acquire(sessionID) {
		o.log.Debug("session already processing", "session", sessionID)
		return
	}
	defer o.release(sessionID)

	if err := o.advancer.Step(ctx, sessionID); err != nil {
		switch {
		case errors.Is(err, store.ErrMalformed):
			// Possibly a mid-write read; the stability window retries it.
			o.log.Debug("session unreadable this pass", "session", sessionID, "error", err)
		case errors.Is(err, store.ErrNotFound):
			o.log.Debug("session vanished", "session", sessionID)
		default:
			o.log.Error("advancement failed", "session", sessionID, "error", err)
		}
	}
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.processing[sessionID] {
		return false
	}
	o.processing[sessionID] = true
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.processing, sessionID)
}

// scanDecisions walks the in-memory approval queue in insertion order and
// applies any decision the operator has made.
func (o *Orchestrator) scanDecisions(ctx context.Context) {
	for _, approvalID := range o.advancer.PendingApprovalIDs() {
		entry, err := o.ledger.Get(approvalID)
		if err != nil {
			o.log.Warn("pending approval missing from ledger", "approval", approvalID, "error", err)
			continue
		}
		if entry.Decision == ledger.StatusPending {
			continue
		}
		if err := o.advancer.Resolve(ctx, entry); err != nil {
			o.log.Error("decision application failed", "approval", approvalID, "error", err)
		}
	}
}

// Reconcile rebuilds the in-memory pending queue from disk. The ledger and
// the session logs survive restarts; the map does not.
func (o *Orchestrator) Reconcile() error {
	entries, err := o.ledger.ListPending()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		sess, err := o.store.ReadSession(entry.SessionID)
		if err != nil {
			o.log.Warn("pending approval for unreadable session",
				"approval", entry.ID, "session", entry.SessionID, "error", err)
			continue
		}

		// A matching tool_result means the call already ran in a previous
		// life; the entry is resolved, just not archived yet.
		if sess.HasToolResult(entry.CallID) {
			final := entry.Decision
			if final == ledger.StatusPending {
				final = ledger.StatusApproved
			}
			if err := o.ledger.Close(entry.ID, final); err != nil {
				o.log.Warn("archiving resolved approval failed", "approval", entry.ID, "error", err)
			}
			continue
		}

		call, remaining, ok := findSuspension(sess, entry.CallID)
		if !ok {
			o.log.Warn("pending approval matches no tool call",
				"approval", entry.ID, "session", entry.SessionID, "call", entry.CallID)
			continue
		}
		o.advancer.Restore(entry, call, remaining)
	}
	return nil
}

// findSuspension locates the gated call in its assistant turn and returns
// the calls after it that are still without results.
func findSuspension(sess *models.Session, callID string) (models.ToolCall, []models.ToolCall, bool) {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		msg := &sess.Messages[i]
		if msg.Role != models.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for j, call := range msg.ToolCalls {
			if call.ID != callID {
				continue
			}
			var remaining []models.ToolCall
			for _, rest := range msg.ToolCalls[j+1:] {
				if !sess.HasToolResult(rest.ID) {
					remaining = append(remaining, rest)
				}
			}
			return call, remaining, true
		}
	}
	return models.ToolCall{}, nil, false
}
