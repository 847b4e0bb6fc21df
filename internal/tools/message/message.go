// Package message provides send_message, the inter-agent routing tool. The
// executor stays pure: it only validates and returns an append intent; the
// dispatcher performs the privileged cross-session write.
package message

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/haasonsaas/conclave/internal/tools"
)

// Intent keys in the send_message result record.
const (
	IntentKey  = "intent"
	IntentSend = "send_message"
)

// SendTool implements send_message.
type SendTool struct{}

// NewSendTool creates the inter-agent message tool.
func NewSendTool() *SendTool { return &SendTool{} }

func (t *SendTool) Name() string { return "send_message" }

func (t *SendTool) Description() string {
	return "Send a message to another agent's session."
}

func (t *SendTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"agent_id": map[string]any{
			"type":        "string",
			"description": "Target session id or agent id.",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "Message content delivered as user input.",
		},
	}, "agent_id", "content")
}

func (t *SendTool) RequiresApproval(map[string]any) bool { return false }

// Execute returns an intent record; the orchestrator performs the actual
// cross-session append and writes the final tool result.
func (t *SendTool) Execute(_ context.Context, args map[string]any) tools.Result {
	target := strings.TrimSpace(tools.StringArg(args, "agent_id"))
	content := tools.StringArg(args, "content")
	if target == "" {
		return tools.Errorf("send_message: agent_id is empty")
	}
	if content == "" {
		return tools.Errorf("send_message: content is empty")
	}
	return tools.Result{
		"success":  true,
		IntentKey:  IntentSend,
		"agent_id": target,
		"content":  content,
	}
}

// ParseIntent extracts the routing intent from an executor record. ok is
// false when the record is not a send intent.
func ParseIntent(result tools.Result) (target, content string, ok bool) {
	if intent, _ := result[IntentKey].(string); intent != IntentSend {
		return "", "", false
	}
	target, _ = result["agent_id"].(string)
	content, _ = result["content"].(string)
	return target, content, target != ""
}
