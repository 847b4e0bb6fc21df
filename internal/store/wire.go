package store

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/conclave/pkg/models"
)

// MessagesForCompletion produces the wire-format message sequence for the
// chat-completion service: a synthetic system message built from the
// session's system prompt, followed by the log with roles re-mapped
// (tool_result becomes the protocol's "tool" role) and tool-call arguments
// re-serialized from their structured form to JSON strings.
func MessagesForCompletion(sess *models.Session) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(sess.Messages)+1)

	if sess.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sess.SystemPrompt,
		})
	}

	for i := range sess.Messages {
		msg := &sess.Messages[i]
		switch msg.Role {
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})

		case models.RoleAssistant:
			wire := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: marshalArgs(call.Args),
					},
				})
			}
			out = append(out, wire)

		case models.RoleToolResult:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    marshalResult(msg),
			})
		}
	}
	return out
}

// marshalArgs renders a structured argument object as the JSON string the
// upstream protocol expects.
func marshalArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// marshalResult renders a tool_result's structured record as JSON content.
// Free-text content, when present, wins over the structured record.
func marshalResult(msg *models.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if msg.Result == nil {
		return "{}"
	}
	data, err := json.Marshal(msg.Result)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(data)
}

// ParseWireArgs converts a tool-call argument payload back into structured
// form, tolerating both an already-structured object and a JSON string.
// Unparseable payloads come back as {"raw": <text>} so the executor can
// surface a validation failure instead of the orchestrator crashing.
func ParseWireArgs(raw string) map[string]any {
	raw = normalizeNewlines(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}
