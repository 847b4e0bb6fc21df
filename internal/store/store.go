// Package store is the conversation store: it marshals agent templates and
// session transcripts between their on-disk textual form and the in-memory
// model, and provides atomic append-only message writes.
//
// Templates are markdown files with YAML frontmatter
// (templates/<agent>.agent.md); the body is the system prompt. Sessions are
// single YAML documents (sessions/<id>.session.yaml) whose multi-line
// strings render as literal block scalars, so transcripts stay readable and
// hand-editable.
package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/conclave/pkg/models"
)

// Sentinel errors for the store's failure taxonomy.
var (
	// ErrNotFound means the template or session file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformed means the file exists but cannot be parsed. Watch-mode
	// readers treat this as transient (a writer may be mid-rewrite) and
	// retry after the stability window.
	ErrMalformed = errors.New("malformed")
	// ErrBrokenLog means the transcript violates the call/result pairing
	// invariant and the session must not be advanced again.
	ErrBrokenLog = errors.New("broken log")
)

const (
	templateSuffix = ".agent.md"
	sessionSuffix  = ".session.yaml"

	frontmatterDelimiter = "---"
)

// Store reads and writes templates and sessions under a fixed root layout.
// Writes to one session are serialized by a per-session lock: the watch loop
// has several writers (advance goroutines, the check-in tick, cross-session
// message routing) and an unserialized read-modify-write would drop appends.
type Store struct {
	templatesDir string
	sessionsDir  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store over the given templates/ and sessions/ directories.
func New(templatesDir, sessionsDir string) *Store {
	return &Store{
		templatesDir: templatesDir,
		sessionsDir:  sessionsDir,
		locks:        make(map[string]*sync.Mutex),
	}
}

// lockSession acquires the write lock for one session and returns the
// release func.
func (s *Store) lockSession(sessionID string) func() {
	s.mu.Lock()
	lk, ok := s.locks[sessionID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[sessionID] = lk
	}
	s.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}

// TemplatePath returns the file path for an agent template.
func (s *Store) TemplatePath(agentID string) string {
	return filepath.Join(s.templatesDir, agentID+templateSuffix)
}

// SessionPath returns the file path for a session.
func (s *Store) SessionPath(sessionID string) string {
	return filepath.Join(s.sessionsDir, sessionID+sessionSuffix)
}

// SessionIDFromPath extracts the session id from a session file path, or ""
// when the path is not a session file.
func SessionIDFromPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, sessionSuffix) {
		return ""
	}
	return strings.TrimSuffix(base, sessionSuffix)
}

// ReadTemplate parses a template file. The YAML frontmatter carries id,
// type, model, tools and metadata; the markdown body is the system prompt.
func (s *Store) ReadTemplate(agentID string) (*models.Template, error) {
	data, err := os.ReadFile(s.TemplatePath(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("template %s: %w", agentID, ErrNotFound)
		}
		return nil, fmt.Errorf("read template %s: %w", agentID, err)
	}

	front, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %s: %w", agentID, err, ErrMalformed)
	}

	var tmpl models.Template
	if err := yaml.Unmarshal(front, &tmpl); err != nil {
		return nil, fmt.Errorf("template %s frontmatter: %v: %w", agentID, err, ErrMalformed)
	}
	if tmpl.ID == "" {
		tmpl.ID = agentID
	}
	tmpl.SystemPrompt = strings.TrimSpace(normalizeNewlines(string(body)))
	return &tmpl, nil
}

// ListTemplates returns the ids of all templates on disk, sorted.
func (s *Store) ListTemplates() ([]string, error) {
	entries, err := os.ReadDir(s.templatesDir)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), templateSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), templateSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadSession parses a session file.
func (s *Store) ReadSession(sessionID string) (*models.Session, error) {
	data, err := os.ReadFile(s.SessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var sess models.Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session %s: %v: %w", sessionID, err, ErrMalformed)
	}
	if sess.ID == "" {
		sess.ID = sessionID
	}
	if err := validateLog(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// validateLog enforces the tool_result pairing invariant.
func validateLog(sess *models.Session) error {
	for i := range sess.Messages {
		msg := &sess.Messages[i]
		if msg.Role != models.RoleToolResult {
			continue
		}
		if msg.ToolCallID == "" {
			return fmt.Errorf("session %s: tool_result at index %d without call id: %w", sess.ID, i, ErrBrokenLog)
		}
		if _, ok := sess.FindToolCall(msg.ToolCallID); !ok {
			return fmt.Errorf("session %s: tool_result %s has no matching call: %w", sess.ID, msg.ToolCallID, ErrBrokenLog)
		}
	}
	return nil
}

// WriteSession serializes the full session and replaces the file in a single
// atomic write (temp file + rename), updating Updated to wall-clock now.
func (s *Store) WriteSession(sess *models.Session) error {
	unlock := s.lockSession(sess.ID)
	defer unlock()
	return s.writeSessionLocked(sess)
}

func (s *Store) writeSessionLocked(sess *models.Session) error {
	sess.Updated = time.Now().UTC()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sess); err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	return atomicWrite(s.SessionPath(sess.ID), buf.Bytes())
}

// AppendMessage reads, appends, and rewrites a session in one step. The
// session lock covers the whole read-modify-write, so concurrent appends to
// one session are linearized and none is lost.
func (s *Store) AppendMessage(sessionID string, msg models.Message) error {
	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, err := s.ReadSession(sessionID)
	if err != nil {
		return err
	}
	sess.Messages = append(sess.Messages, msg)
	return s.writeSessionLocked(sess)
}

// CreateSession clones template metadata into a fresh active session. When
// sessionID is empty a `<agent>-<nonce>` id is generated.
func (s *Store) CreateSession(agentID, sessionID string) (string, error) {
	tmpl, err := s.ReadTemplate(agentID)
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		sessionID = fmt.Sprintf("%s-%s", agentID, uuid.NewString()[:8])
	}
	unlock := s.lockSession(sessionID)
	defer unlock()
	if _, err := os.Stat(s.SessionPath(sessionID)); err == nil {
		return "", fmt.Errorf("session %s already exists", sessionID)
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:           sessionID,
		AgentID:      tmpl.ID,
		AgentType:    tmpl.Type,
		Model:        tmpl.Model,
		SystemPrompt: tmpl.SystemPrompt,
		Tools:        append([]string(nil), tmpl.Tools...),
		Created:      now,
		Status:       models.StatusActive,
		Metadata:     cloneMetadata(tmpl.Metadata),
	}
	if err := s.writeSessionLocked(sess); err != nil {
		return "", err
	}
	return sessionID, nil
}

// ListSessions returns all session ids on disk, sorted by filename. The
// sort order is what makes "earliest planner session" deterministic.
func (s *Store) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sessionSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), sessionSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// SetStatus rewrites a session with a new status. It skips the pairing
// validation so a session with a broken log can still be parked.
func (s *Store) SetStatus(sessionID string, status models.SessionStatus) error {
	unlock := s.lockSession(sessionID)
	defer unlock()

	data, err := os.ReadFile(s.SessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return fmt.Errorf("read session %s: %w", sessionID, err)
	}
	var sess models.Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("session %s: %v: %w", sessionID, err, ErrMalformed)
	}
	if sess.ID == "" {
		sess.ID = sessionID
	}
	sess.Status = status
	return s.writeSessionLocked(&sess)
}

// atomicWrite writes data to path via a temp file in the same directory and
// an atomic rename, so concurrent readers never observe a half-written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// splitFrontmatter separates YAML frontmatter from the markdown body.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, errors.New("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, errors.New("missing opening frontmatter delimiter")
	}

	var front []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		front = append(front, line)
	}
	if !closed {
		return nil, nil, errors.New("missing closing frontmatter delimiter")
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return []byte(strings.Join(front, "\n")), []byte(strings.Join(body, "\n")), nil
}

// normalizeNewlines converts CRLF and bare CR to LF.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
