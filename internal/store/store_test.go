package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/conclave/pkg/models"
)

const plannerTemplate = `---
id: planner
type: planner
model: gpt-4o
tools:
  - send_message
  - create_task
metadata:
  tool_choice: auto
---
You coordinate the other agents.

Assign work, then check on progress.
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	templates := filepath.Join(root, "templates")
	sessions := filepath.Join(root, "sessions")
	for _, dir := range []string{templates, sessions} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	s := New(templates, sessions)
	if err := os.WriteFile(s.TemplatePath("planner"), []byte(plannerTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestReadTemplate(t *testing.T) {
	s := newTestStore(t)

	tmpl, err := s.ReadTemplate("planner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.ID != "planner" {
		t.Errorf("ID = %q, want planner", tmpl.ID)
	}
	if tmpl.Type != models.AgentPlanner {
		t.Errorf("Type = %q, want planner", tmpl.Type)
	}
	if tmpl.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", tmpl.Model)
	}
	if !reflect.DeepEqual(tmpl.Tools, []string{"send_message", "create_task"}) {
		t.Errorf("Tools = %v", tmpl.Tools)
	}
	if !strings.HasPrefix(tmpl.SystemPrompt, "You coordinate") {
		t.Errorf("SystemPrompt = %q", tmpl.SystemPrompt)
	}
	if !strings.Contains(tmpl.SystemPrompt, "check on progress") {
		t.Errorf("system prompt lost its body: %q", tmpl.SystemPrompt)
	}

	t.Run("missing", func(t *testing.T) {
		_, err := s.ReadTemplate("ghost")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("no frontmatter", func(t *testing.T) {
		if err := os.WriteFile(s.TemplatePath("bad"), []byte("just text"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := s.ReadTemplate("bad")
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("err = %v, want ErrMalformed", err)
		}
	})

	t.Run("crlf body normalized", func(t *testing.T) {
		content := "---\nid: win\ntype: solo\nmodel: gpt-4o\n---\r\nline one\r\nline two\r\n"
		if err := os.WriteFile(s.TemplatePath("win"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		tmpl, err := s.ReadTemplate("win")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(tmpl.SystemPrompt, "\r") {
			t.Errorf("prompt still carries CR: %q", tmpl.SystemPrompt)
		}
	})
}

func TestCreateSession(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateSession("planner", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(id, "planner-") {
		t.Errorf("id = %q, want planner-<nonce>", id)
	}

	sess, err := s.ReadSession(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", sess.Status)
	}
	if len(sess.Messages) != 0 {
		t.Errorf("new session has %d messages, want 0", len(sess.Messages))
	}
	if sess.SystemPrompt == "" {
		t.Error("system prompt not cloned")
	}
	if len(sess.Tools) != 2 {
		t.Errorf("tools not cloned: %v", sess.Tools)
	}

	t.Run("explicit id", func(t *testing.T) {
		id, err := s.CreateSession("planner", "planner-fixed")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "planner-fixed" {
			t.Errorf("id = %q", id)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		if _, err := s.CreateSession("planner", "planner-fixed"); err == nil {
			t.Error("expected duplicate error")
		}
	})

	t.Run("missing template", func(t *testing.T) {
		_, err := s.CreateSession("ghost", "")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestAppendMessagePreservesPrefix(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateSession("planner", "planner-0001")
	if err != nil {
		t.Fatal(err)
	}

	var snapshots [][]models.Message
	for i, content := range []string{"one", "two", "three"} {
		if err := s.AppendMessage(id, models.NewUserMessage(content)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		sess, err := s.ReadSession(id)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		snapshots = append(snapshots, sess.Messages)
	}

	// Append-only invariant: each snapshot is a prefix of the next.
	for i := 1; i < len(snapshots); i++ {
		prev, next := snapshots[i-1], snapshots[i]
		if len(next) != len(prev)+1 {
			t.Fatalf("snapshot %d has %d messages, want %d", i, len(next), len(prev)+1)
		}
		for j := range prev {
			if prev[j].Content != next[j].Content || prev[j].Role != next[j].Role {
				t.Errorf("snapshot %d rewrote entry %d", i, j)
			}
		}
	}
}

func TestConcurrentAppendsAreLinearized(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateSession("planner", "planner-0001")
	if err != nil {
		t.Fatal(err)
	}

	// Watch mode appends to one session from several goroutines: advance,
	// check-in tick, and routed messages. Every append must survive.
	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.AppendMessage(id, models.NewUserMessage(fmt.Sprintf("message %d", n))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	sess, err := s.ReadSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != writers {
		t.Fatalf("messages = %d, want %d: concurrent appends lost entries", len(sess.Messages), writers)
	}
	seen := make(map[string]bool, writers)
	for _, msg := range sess.Messages {
		seen[msg.Content] = true
	}
	if len(seen) != writers {
		t.Errorf("distinct messages = %d, want %d", len(seen), writers)
	}
}

func TestWriteSessionAtomic(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateSession("planner", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(id, models.NewUserMessage("hello")); err != nil {
		t.Fatal(err)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(s.SessionPath(id)))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadSessionErrors(t *testing.T) {
	s := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		_, err := s.ReadSession("ghost")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if err := os.WriteFile(s.SessionPath("broken"), []byte("messages: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := s.ReadSession("broken")
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("err = %v, want ErrMalformed", err)
		}
	})

	t.Run("orphan tool_result", func(t *testing.T) {
		content := `id: executor-x
agent: executor
status: active
messages:
  - ts: 2026-08-24T10:00:00Z
    role: tool_result
    tool_call_id: call_missing
    result:
      success: true
`
		if err := os.WriteFile(s.SessionPath("executor-x"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := s.ReadSession("executor-x")
		if !errors.Is(err, ErrBrokenLog) {
			t.Errorf("err = %v, want ErrBrokenLog", err)
		}
	})
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateSession("planner", "")
	if err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{
		ID:   "call_1",
		Name: "execute_command",
		Args: map[string]any{"command": "docker ps"},
	}
	if err := s.AppendMessage(id, models.NewUserMessage("Run 'docker ps'")); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(id, models.NewAssistantMessage("", []models.ToolCall{call})); err != nil {
		t.Fatal(err)
	}

	sess, err := s.ReadSession(id)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := sess.FindToolCall("call_1")
	if !ok {
		t.Fatal("tool call lost in round trip")
	}
	if cmd, _ := got.Args["command"].(string); cmd != "docker ps" {
		t.Errorf("args lost: %v", got.Args)
	}
}

func TestSessionIDFromPath(t *testing.T) {
	if id := SessionIDFromPath("/data/sessions/planner-1.session.yaml"); id != "planner-1" {
		t.Errorf("id = %q", id)
	}
	if id := SessionIDFromPath("/data/tasks/approvals.task.md"); id != "" {
		t.Errorf("id = %q, want empty", id)
	}
}

func TestListSessionsSorted(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"planner-b", "planner-a", "executor-c"} {
		if _, err := s.CreateSession("planner", id); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"executor-c", "planner-a", "planner-b"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}
