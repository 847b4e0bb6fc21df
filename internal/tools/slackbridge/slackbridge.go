// Package slackbridge provides the external messaging tools. Outbound
// messages (slack_send, gated) always append to the channel outbox ledger
// at inbox/slack-outbox.jsonl and additionally post through the Slack Web
// API when a bot token is configured. Inbound reads (slack_read, safe)
// merge the inbox ledger at inbox/slack.jsonl with recent channel history
// from the API when available.
package slackbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"

	"github.com/haasonsaas/conclave/internal/tools"
)

// Channel is the logical channel name used in the inbox layout.
const Channel = "slack"

// Record is one line in the inbox/outbox JSONL ledgers.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Channel   string    `json:"channel"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
}

// API is the slice of the Slack client the tools use; the concrete
// *slack.Client satisfies it.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

// Bridge holds shared state for both slack tools.
type Bridge struct {
	inboxDir       string
	defaultChannel string
	api            API
}

// NewBridge creates the bridge. token may be empty, in which case only the
// JSONL ledgers are used.
func NewBridge(inboxDir, defaultChannel, token string) *Bridge {
	b := &Bridge{inboxDir: inboxDir, defaultChannel: defaultChannel}
	if token != "" {
		b.api = slack.New(token)
	}
	return b
}

// NewBridgeWithAPI wires an explicit API implementation (tests).
func NewBridgeWithAPI(inboxDir, defaultChannel string, api API) *Bridge {
	return &Bridge{inboxDir: inboxDir, defaultChannel: defaultChannel, api: api}
}

func (b *Bridge) inboxPath() string {
	return filepath.Join(b.inboxDir, Channel+".jsonl")
}

func (b *Bridge) outboxPath() string {
	return filepath.Join(b.inboxDir, Channel+"-outbox.jsonl")
}

// appendRecord appends one JSON line to a ledger file.
func appendRecord(path string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

// readRecords reads up to limit most recent records from a ledger file.
func readRecords(path string, limit int) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // tolerate partial trailing line
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// SendTool implements slack_send. Always gated: an outbound external
// message is MEDIUM risk.
type SendTool struct {
	bridge *Bridge
}

// NewSendTool creates slack_send over a bridge.
func NewSendTool(bridge *Bridge) *SendTool { return &SendTool{bridge: bridge} }

func (t *SendTool) Name() string { return "slack_send" }

func (t *SendTool) Description() string {
	return "Send a message to a Slack channel. Requires operator approval."
}

func (t *SendTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"channel": map[string]any{
			"type":        "string",
			"description": "Channel id or name.",
		},
		"message": map[string]any{
			"type":        "string",
			"description": "Message text.",
		},
	}, "channel", "message")
}

func (t *SendTool) RequiresApproval(map[string]any) bool { return true }

func (t *SendTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	channel := tools.StringArg(args, "channel")
	text := tools.StringArg(args, "message")

	rec := Record{Timestamp: time.Now().UTC(), Channel: channel, Text: text}
	if err := appendRecord(t.bridge.outboxPath(), rec); err != nil {
		return tools.Errorf("outbox: %v", err)
	}

	posted := false
	if t.bridge.api != nil {
		if _, _, err := t.bridge.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
			return tools.Errorf("slack post: %v", err)
		}
		posted = true
	}
	return tools.OK("channel", channel, "posted", posted)
}

// ReadTool implements slack_read.
type ReadTool struct {
	bridge *Bridge
}

// NewReadTool creates slack_read over a bridge.
func NewReadTool(bridge *Bridge) *ReadTool { return &ReadTool{bridge: bridge} }

func (t *ReadTool) Name() string { return "slack_read" }

func (t *ReadTool) Description() string {
	return "Read recent inbound Slack messages."
}

func (t *ReadTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum number of messages (default 20).",
		},
	})
}

func (t *ReadTool) RequiresApproval(map[string]any) bool { return false }

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	limit := tools.IntArg(args, "limit", 20)

	records, err := readRecords(t.bridge.inboxPath(), limit)
	if err != nil {
		return tools.Errorf("inbox: %v", err)
	}

	messages := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		messages = append(messages, map[string]any{
			"ts":      rec.Timestamp.Format(time.RFC3339),
			"channel": rec.Channel,
			"sender":  rec.Sender,
			"text":    rec.Text,
		})
	}

	// Merge recent channel history when the API is wired.
	if t.bridge.api != nil && t.bridge.defaultChannel != "" {
		resp, err := t.bridge.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: t.bridge.defaultChannel,
			Limit:     limit,
		})
		if err == nil && resp != nil {
			for _, m := range resp.Messages {
				messages = append(messages, map[string]any{
					"ts":      m.Timestamp,
					"channel": t.bridge.defaultChannel,
					"sender":  m.User,
					"text":    m.Text,
				})
			}
		}
	}

	return tools.OK("messages", messages, "count", len(messages))
}
