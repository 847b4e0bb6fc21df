package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/conclave/pkg/models"
)

// CheckinMessage is the timed nudge injected into the planner session.
// Without it the planner has no event source once initial tasks are
// assigned.
const CheckinMessage = "Check-in with running agents to ensure progress"

// CheckinState is the singleton record at storage/planner-checkin.yaml.
type CheckinState struct {
	LastCheckin     time.Time `yaml:"last_checkin"`
	IntervalSeconds int       `yaml:"interval_seconds"`
	PlannerSession  string    `yaml:"planner_session,omitempty"`
	CheckinCount    int       `yaml:"checkin_count"`
	LastReason      string    `yaml:"last_reason,omitempty"`
}

// loadCheckinState reads the record, returning a zero state when the file
// does not exist yet.
func (o *Orchestrator) loadCheckinState() (*CheckinState, error) {
	data, err := os.ReadFile(o.cfg.CheckinPath())
	if os.IsNotExist(err) {
		return &CheckinState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read check-in state: %w", err)
	}
	var state CheckinState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse check-in state: %w", err)
	}
	return &state, nil
}

func (o *Orchestrator) saveCheckinState(state *CheckinState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode check-in state: %w", err)
	}
	if err := os.WriteFile(o.cfg.CheckinPath(), data, 0o644); err != nil {
		return fmt.Errorf("write check-in state: %w", err)
	}
	return nil
}

// EvaluateCheckin applies the check-in timer. The first evaluation ever
// only records the baseline timestamp and triggers nothing; later
// evaluations append the nudge once the interval has elapsed. Returns true
// when a message was injected.
func (o *Orchestrator) EvaluateCheckin() (bool, error) {
	state, err := o.loadCheckinState()
	if err != nil {
		return false, err
	}
	if state.IntervalSeconds <= 0 {
		state.IntervalSeconds = o.cfg.CheckinIntervalSeconds
	}

	now := o.now()
	if state.LastCheckin.IsZero() {
		state.LastCheckin = now
		state.LastReason = "baseline recorded"
		return false, o.saveCheckinState(state)
	}

	interval := time.Duration(state.IntervalSeconds) * time.Second
	elapsed := now.Sub(state.LastCheckin)
	if elapsed < interval {
		return false, nil
	}

	sessionID, err := o.plannerSession()
	if err != nil {
		return false, fmt.Errorf("locate planner session: %w", err)
	}
	if err := o.store.AppendMessage(sessionID, models.NewUserMessage(CheckinMessage)); err != nil {
		return false, fmt.Errorf("inject check-in: %w", err)
	}

	state.LastCheckin = now
	state.PlannerSession = sessionID
	state.CheckinCount++
	state.LastReason = fmt.Sprintf("interval %s elapsed (%s since last); nudged %s",
		interval, elapsed.Truncate(time.Second), sessionID)
	if err := o.saveCheckinState(state); err != nil {
		return true, err
	}
	o.log.Info("planner check-in injected", "session", sessionID, "count", state.CheckinCount)
	return true, nil
}

// plannerSession resolves the singleton planner session: the earliest by
// filename among sessions with the planner prefix, or a fresh one cloned
// from the planner template when none exists.
func (o *Orchestrator) plannerSession() (string, error) {
	ids, err := o.store.ListSessions()
	if err != nil {
		return "", err
	}
	prefix := o.cfg.PlannerAgent + "-"
	for _, id := range ids { // ids are sorted by filename
		if id == o.cfg.PlannerAgent || strings.HasPrefix(id, prefix) {
			return id, nil
		}
	}

	sessionID, err := o.store.CreateSession(o.cfg.PlannerAgent, "")
	if err != nil {
		return "", err
	}
	o.log.Info("created planner session", "session", sessionID)
	return sessionID, nil
}
