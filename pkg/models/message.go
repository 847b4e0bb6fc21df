// Package models provides the domain types for the Conclave orchestrator:
// agent templates, sessions, transcript messages, and tool calls.
package models

import "time"

// Role identifies who produced a message in a session log.
type Role string

const (
	// RoleUser marks human input or orchestrator-injected prompts.
	RoleUser Role = "user"
	// RoleAssistant marks model replies, with or without tool calls.
	RoleAssistant Role = "assistant"
	// RoleToolResult marks the structured outcome of a tool call.
	RoleToolResult Role = "tool_result"
)

// ToolCall is a single tool invocation requested by the model.
// Arguments are stored structured; they are serialized to a JSON string only
// when a message list is formatted for the completion service.
type ToolCall struct {
	ID   string         `yaml:"id" json:"id"`
	Name string         `yaml:"name" json:"name"`
	Args map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

// Message is one entry in a session's append-only log.
type Message struct {
	Timestamp time.Time `yaml:"ts" json:"ts"`
	Role      Role      `yaml:"role" json:"role"`

	// Content may be empty when ToolCalls are present.
	Content string `yaml:"content,omitempty" json:"content,omitempty"`

	// ToolCalls is set only on assistant messages.
	ToolCalls []ToolCall `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`

	// ToolCallID is set only on tool_result messages and refers back to a
	// ToolCall.ID in an earlier assistant message of the same session.
	ToolCallID string `yaml:"tool_call_id,omitempty" json:"tool_call_id,omitempty"`

	// Result is the structured executor record for tool_result messages.
	Result map[string]any `yaml:"result,omitempty" json:"result,omitempty"`
}

// NewUserMessage builds a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Timestamp: time.Now().UTC(), Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an assistant message carrying optional text and
// the model's tool calls in declared order.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	return Message{Timestamp: time.Now().UTC(), Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolResultMessage builds a tool_result message for the given call id.
func NewToolResultMessage(callID string, result map[string]any) Message {
	return Message{Timestamp: time.Now().UTC(), Role: RoleToolResult, ToolCallID: callID, Result: result}
}

// ResultSuccess reports whether a structured tool result record carries
// success=true.
func ResultSuccess(result map[string]any) bool {
	if result == nil {
		return false
	}
	ok, _ := result["success"].(bool)
	return ok
}
