// Package introspect provides the planner-only session introspection tools:
// list_active_sessions, read_session and edit_session. They operate on raw
// session files so the planner sees exactly what an operator would.
package introspect

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/conclave/internal/store"
	"github.com/haasonsaas/conclave/internal/tools"
	"github.com/haasonsaas/conclave/pkg/models"
)

// ListTool implements list_active_sessions.
type ListTool struct {
	store *store.Store
}

// NewListTool creates list_active_sessions over the conversation store.
func NewListTool(s *store.Store) *ListTool { return &ListTool{store: s} }

func (t *ListTool) Name() string { return "list_active_sessions" }

func (t *ListTool) Description() string {
	return "List sessions with their agent, status and message count."
}

func (t *ListTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{})
}

func (t *ListTool) RequiresApproval(map[string]any) bool { return false }

func (t *ListTool) Execute(_ context.Context, _ map[string]any) tools.Result {
	ids, err := t.store.ListSessions()
	if err != nil {
		return tools.Errorf("list sessions: %v", err)
	}

	var sessions []map[string]any
	for _, id := range ids {
		sess, err := t.store.ReadSession(id)
		if err != nil {
			// A mid-write file shows up as malformed; skip it this pass.
			continue
		}
		if sess.Status != models.StatusActive {
			continue
		}
		sessions = append(sessions, map[string]any{
			"session":  sess.ID,
			"agent":    sess.AgentID,
			"type":     string(sess.AgentType),
			"status":   string(sess.Status),
			"messages": len(sess.Messages),
			"file":     filepath.Base(t.store.SessionPath(sess.ID)),
		})
	}
	return tools.OK("sessions", sessions, "count", len(sessions))
}

// ReadTool implements read_session: raw file content for a session.
type ReadTool struct {
	store *store.Store
}

// NewReadTool creates read_session over the conversation store.
func NewReadTool(s *store.Store) *ReadTool { return &ReadTool{store: s} }

func (t *ReadTool) Name() string { return "read_session" }

func (t *ReadTool) Description() string {
	return "Read the raw transcript file of a session."
}

func (t *ReadTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"session_file": map[string]any{
			"type":        "string",
			"description": "Session file name or session id.",
		},
	}, "session_file")
}

func (t *ReadTool) RequiresApproval(map[string]any) bool { return false }

func (t *ReadTool) Execute(_ context.Context, args map[string]any) tools.Result {
	path, err := t.resolve(tools.StringArg(args, "session_file"))
	if err != nil {
		return tools.Errorf("%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tools.Errorf("read %s: %v", path, err)
	}
	return tools.OK("file", filepath.Base(path), "content", string(data))
}

// EditTool implements edit_session. Rewriting another agent's transcript is
// the planner's most invasive capability and is always gated.
type EditTool struct {
	store *store.Store
}

// NewEditTool creates edit_session over the conversation store.
func NewEditTool(s *store.Store) *EditTool { return &EditTool{store: s} }

func (t *EditTool) Name() string { return "edit_session" }

func (t *EditTool) Description() string {
	return "Replace a session transcript file. Requires operator approval."
}

func (t *EditTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"session_file": map[string]any{
			"type":        "string",
			"description": "Session file name or session id.",
		},
		"new_content": map[string]any{
			"type":        "string",
			"description": "Full replacement content.",
		},
	}, "session_file", "new_content")
}

func (t *EditTool) RequiresApproval(map[string]any) bool { return true }

func (t *EditTool) Execute(_ context.Context, args map[string]any) tools.Result {
	path, err := t.resolve(tools.StringArg(args, "session_file"))
	if err != nil {
		return tools.Errorf("%v", err)
	}
	content := tools.StringArg(args, "new_content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return tools.Errorf("write %s: %v", path, err)
	}
	return tools.OK("file", filepath.Base(path), "bytes", len(content))
}

// resolve maps a session id or bare file name onto the sessions directory.
// Paths outside it are refused.
func (t *ReadTool) resolve(ref string) (string, error) { return resolveSessionRef(t.store, ref) }
func (t *EditTool) resolve(ref string) (string, error) { return resolveSessionRef(t.store, ref) }

func resolveSessionRef(s *store.Store, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", os.ErrNotExist
	}
	if id := store.SessionIDFromPath(ref); id != "" {
		return s.SessionPath(id), nil
	}
	return s.SessionPath(filepath.Base(ref)), nil
}
