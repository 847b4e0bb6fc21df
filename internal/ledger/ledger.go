// Package ledger persists approval requests in the shared human-editable
// task list at tasks/approvals.task.md and discovers human decisions.
//
// Each entry is a markdown task-list item whose checkbox the operator edits:
// `[ ]` keeps the request pending, `[x]` approves it, `[-]` rejects it.
// Machine fields live as indented key/value lines under the item; trailing
// free-form lines are preserved verbatim as operator notes. The orchestrator
// never flips a checkbox: it only appends new entries and, after acting on
// a decision, writes the archival `status` field.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/conclave/internal/policy"
)

// Status is the lifecycle state of an approval entry. It is terminal once
// it leaves pending.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ErrNotFound means no ledger entry carries the requested id.
var ErrNotFound = errors.New("approval not found")

// Entry is one approval request in the ledger.
type Entry struct {
	ID          string
	CallID      string
	SessionID   string
	Tool        string
	Args        map[string]any
	Risk        policy.Risk
	Description string
	Created     time.Time

	// Decision is read from the checkbox glyph the operator edits.
	Decision Status

	// Status is the archival field the orchestrator writes after acting on
	// a non-pending decision. It stays pending until then.
	Status Status

	// Notes are free-form trailing lines the operator added under the
	// entry. They survive rewrites untouched.
	Notes []string
}

const ledgerHeader = `# Approval Ledger

Mark the checkbox to decide: ` + "`[x]`" + ` approves, ` + "`[-]`" + ` rejects, ` + "`[ ]`" + ` keeps it pending.
The daemon appends requests here and acts once a box is marked.
`

var (
	entryHeaderRe = regexp.MustCompile(`^- \[([ xX-])\] (.*)$`)
	fieldRe       = regexp.MustCompile(`^  - ([a-z_]+): (.*)$`)
)

// Ledger reads and writes the single shared approval file.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// New creates a ledger over the given file path. The file is created lazily
// on the first request.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger file path (watched by the orchestrator).
func (l *Ledger) Path() string { return l.path }

// Request appends a pending entry and returns its generated id.
func (l *Ledger) Request(sessionID, callID, tool string, args map[string]any, risk policy.Risk, description string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return "", err
	}

	entry := &Entry{
		ID:          "ap-" + uuid.NewString()[:8],
		CallID:      callID,
		SessionID:   sessionID,
		Tool:        tool,
		Args:        args,
		Risk:        risk,
		Description: description,
		Created:     time.Now().UTC(),
		Decision:    StatusPending,
		Status:      StatusPending,
	}
	entries = append(entries, entry)

	if err := l.save(entries); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Entries returns every entry in file order.
func (l *Ledger) Entries() ([]*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Get returns the entry with the given id.
func (l *Ledger) Get(id string) (*Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Decision returns the operator's current decision for an entry, read from
// its checkbox glyph.
func (l *Ledger) Decision(id string) (Status, error) {
	entry, err := l.Get(id)
	if err != nil {
		return "", err
	}
	return entry.Decision, nil
}

// ListPending returns entries the orchestrator has not archived yet, in
// file (insertion) order.
func (l *Ledger) ListPending() ([]*Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	var pending []*Entry
	for _, e := range entries {
		if e.Status == StatusPending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Close archives an entry with its final status. The entry remains visible
// in the file; only the status field changes.
func (l *Ledger) Close(id string, final Status) error {
	if final != StatusApproved && final != StatusRejected {
		return fmt.Errorf("close %s: invalid final status %q", id, final)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return err
	}
	found := false
	for _, e := range entries {
		if e.ID == id {
			e.Status = final
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return l.save(entries)
}

// load parses the ledger file. A missing file is an empty ledger.
func (l *Ledger) load() ([]*Entry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}

	var entries []*Entry
	var current *Entry
	for _, rawLine := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		if m := entryHeaderRe.FindStringSubmatch(rawLine); m != nil {
			current = &Entry{
				Decision:    decisionForGlyph(m[1]),
				Description: strings.TrimSpace(m[2]),
				Status:      StatusPending,
			}
			entries = append(entries, current)
			continue
		}
		if current == nil {
			continue // header prose
		}
		if m := fieldRe.FindStringSubmatch(rawLine); m != nil {
			applyField(current, m[1], strings.TrimSpace(m[2]))
			continue
		}
		// Anything else indented under an entry is an operator note.
		if strings.TrimSpace(rawLine) != "" && strings.HasPrefix(rawLine, "  ") {
			current.Notes = append(current.Notes, strings.TrimPrefix(rawLine, "  "))
		}
	}
	return entries, nil
}

// save rewrites the whole file, preserving decisions and notes.
func (l *Ledger) save(entries []*Entry) error {
	var sb strings.Builder
	sb.WriteString(ledgerHeader)
	for _, e := range entries {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "- [%s] %s\n", glyphForDecision(e.Decision), e.Description)
		fmt.Fprintf(&sb, "  - id: %s\n", e.ID)
		fmt.Fprintf(&sb, "  - call: %s\n", e.CallID)
		fmt.Fprintf(&sb, "  - session: %s\n", e.SessionID)
		fmt.Fprintf(&sb, "  - tool: %s\n", e.Tool)
		fmt.Fprintf(&sb, "  - risk: %s\n", e.Risk)
		fmt.Fprintf(&sb, "  - created: %s\n", e.Created.Format(time.RFC3339))
		fmt.Fprintf(&sb, "  - status: %s\n", e.Status)
		fmt.Fprintf(&sb, "  - args: `%s`\n", marshalArgs(e.Args))
		for _, note := range e.Notes {
			fmt.Fprintf(&sb, "  %s\n", note)
		}
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func applyField(e *Entry, key, value string) {
	switch key {
	case "id":
		e.ID = value
	case "call":
		e.CallID = value
	case "session":
		e.SessionID = value
	case "tool":
		e.Tool = value
	case "risk":
		e.Risk = policy.Risk(value)
	case "created":
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			e.Created = t
		}
	case "status":
		switch Status(value) {
		case StatusApproved, StatusRejected:
			e.Status = Status(value)
		default:
			e.Status = StatusPending
		}
	case "args":
		e.Args = unmarshalArgs(strings.Trim(value, "`"))
	default:
		// Unknown machine-looking fields are kept as notes so a rewrite
		// does not lose operator additions.
		e.Notes = append(e.Notes, fmt.Sprintf("- %s: %s", key, value))
	}
}

func decisionForGlyph(glyph string) Status {
	switch glyph {
	case "x", "X":
		return StatusApproved
	case "-":
		return StatusRejected
	default:
		return StatusPending
	}
}

func glyphForDecision(decision Status) string {
	switch decision {
	case StatusApproved:
		return "x"
	case StatusRejected:
		return "-"
	default:
		return " "
	}
}

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

func unmarshalArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
