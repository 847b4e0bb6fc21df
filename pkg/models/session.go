package models

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// StatusActive means the session may be advanced.
	StatusActive SessionStatus = "active"
	// StatusSleeping means the session is parked and ignored by the loop.
	StatusSleeping SessionStatus = "sleeping"
	// StatusCompleted means the session finished its work.
	StatusCompleted SessionStatus = "completed"
	// StatusError means the session hit an unrecoverable fault and will not
	// be advanced again.
	StatusError SessionStatus = "error"
)

// AgentType classifies what role an agent plays in the population.
type AgentType string

const (
	AgentPlanner   AgentType = "planner"
	AgentRetriever AgentType = "retriever"
	AgentExecutor  AgentType = "executor"
	AgentEvaluator AgentType = "evaluator"
	AgentSolo      AgentType = "solo"
)

// Session is one live conversation instance cloned from a template.
// The message log is append-only: existing entries are never rewritten, and
// the file is rewritten in full only to append.
type Session struct {
	ID           string         `yaml:"id"`
	AgentID      string         `yaml:"agent"`
	AgentType    AgentType      `yaml:"type"`
	Model        string         `yaml:"model"`
	SystemPrompt string         `yaml:"system_prompt"`
	Tools        []string       `yaml:"tools,omitempty"`
	Created      time.Time      `yaml:"created"`
	Updated      time.Time      `yaml:"updated"`
	Status       SessionStatus  `yaml:"status"`
	Messages     []Message      `yaml:"messages"`
	Metadata     map[string]any `yaml:"metadata,omitempty"`
}

// LastMessage returns the final log entry, or nil for an empty log.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// LastRoleAdvancable reports whether the log ends on a message the model
// should respond to (user input or a tool result). Approval blocking is
// checked separately by the orchestrator.
func (s *Session) LastRoleAdvancable() bool {
	last := s.LastMessage()
	if last == nil {
		return false
	}
	return last.Role == RoleUser || last.Role == RoleToolResult
}

// FindToolCall locates a tool call by id across all assistant messages.
func (s *Session) FindToolCall(callID string) (*ToolCall, bool) {
	for i := range s.Messages {
		msg := &s.Messages[i]
		if msg.Role != RoleAssistant {
			continue
		}
		for j := range msg.ToolCalls {
			if msg.ToolCalls[j].ID == callID {
				return &msg.ToolCalls[j], true
			}
		}
	}
	return nil, false
}

// HasToolResult reports whether a tool_result for the given call id exists.
func (s *Session) HasToolResult(callID string) bool {
	for i := range s.Messages {
		if s.Messages[i].Role == RoleToolResult && s.Messages[i].ToolCallID == callID {
			return true
		}
	}
	return false
}

// LastAssistantWithCalls returns the most recent assistant message carrying
// tool calls, or nil when none exists.
func (s *Session) LastAssistantWithCalls() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant && len(s.Messages[i].ToolCalls) > 0 {
			return &s.Messages[i]
		}
	}
	return nil
}

// LastCompletedToolName resolves the tool name behind the most recent
// tool_result in the log, together with that result record. The second
// return is false when the log has no tool_result or the call id cannot be
// matched to an earlier assistant call.
func (s *Session) LastCompletedToolName() (string, map[string]any, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := &s.Messages[i]
		if msg.Role != RoleToolResult {
			continue
		}
		call, ok := s.FindToolCall(msg.ToolCallID)
		if !ok {
			return "", nil, false
		}
		return call.Name, msg.Result, true
	}
	return "", nil, false
}

// MetadataString reads a string metadata key, returning "" when absent.
func (s *Session) MetadataString(key string) string {
	if s.Metadata == nil {
		return ""
	}
	v, _ := s.Metadata[key].(string)
	return v
}
