package policy

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Allowlist holds the shell command patterns that may run without human
// approval. Patterns use `*` as a wildcard spanning any text; matching is
// against the whole trimmed command.
type Allowlist struct {
	mu       sync.RWMutex
	patterns []string
}

// allowlistFile is the on-disk shape of storage/terminal-cmd-allowlist.yaml.
type allowlistFile struct {
	Patterns []string `yaml:"patterns"`
}

// DefaultAllowlistPatterns cover read-only commands that are safe to run
// unattended. Operators extend the list on disk.
var DefaultAllowlistPatterns = []string{
	"ls", "ls *", "pwd", "date", "whoami",
	"cat *", "head *", "tail *", "wc *",
	"git status", "git log*", "git diff*", "git branch",
	"echo *",
}

// NewAllowlist builds an allowlist from explicit patterns.
func NewAllowlist(patterns []string) *Allowlist {
	return &Allowlist{patterns: append([]string(nil), patterns...)}
}

// LoadAllowlist reads the allowlist file, seeding it with defaults when it
// does not exist yet.
func LoadAllowlist(path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		list := NewAllowlist(DefaultAllowlistPatterns)
		if err := list.Save(path); err != nil {
			return nil, err
		}
		return list, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allowlist %s: %w", path, err)
	}

	var file allowlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse allowlist %s: %w", path, err)
	}
	return NewAllowlist(file.Patterns), nil
}

// Save writes the allowlist back to disk.
func (a *Allowlist) Save(path string) error {
	a.mu.RLock()
	file := allowlistFile{Patterns: append([]string(nil), a.patterns...)}
	a.mu.RUnlock()

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode allowlist: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write allowlist %s: %w", path, err)
	}
	return nil
}

// Patterns returns a copy of the configured patterns.
func (a *Allowlist) Patterns() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.patterns...)
}

// Matches reports whether the command is covered by any pattern.
func (a *Allowlist) Matches(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, pattern := range a.patterns {
		if matchPattern(pattern, cmd) {
			return true
		}
	}
	return false
}

// matchPattern matches value against pattern where `*` spans any run of
// characters, including spaces.
func matchPattern(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == value
	}

	if parts[0] != "" && !strings.HasPrefix(value, parts[0]) {
		return false
	}
	rest := value[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	last := parts[len(parts)-1]
	return last == "" || strings.HasSuffix(rest, last)
}
