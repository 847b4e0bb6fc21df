// Package files provides the filesystem tools: read_file, write_file,
// list_directory and create_directory. Reads and directory operations are
// safe; writes always pass the approval gate.
package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/conclave/internal/tools"
)

// Resolver maps tool-supplied paths onto the filesystem. Relative paths are
// anchored at the workspace root; absolute paths pass through (risk
// classification handles the dangerous ones).
type Resolver struct {
	Root string
}

// Resolve returns the effective path for a tool argument.
func (r Resolver) Resolve(path string) string {
	if path == "" {
		return r.Root
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.Root, path)
}

// ReadTool implements read_file.
type ReadTool struct {
	resolver Resolver
}

// NewReadTool creates a read_file tool anchored at the workspace root.
func NewReadTool(root string) *ReadTool {
	return &ReadTool{resolver: Resolver{Root: root}}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read a text file and return its content."
}

func (t *ReadTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path to read (relative to the workspace or absolute).",
		},
	}, "path")
}

func (t *ReadTool) RequiresApproval(map[string]any) bool { return false }

// Execute reads the file, normalizing line endings to LF for downstream
// rendering.
func (t *ReadTool) Execute(_ context.Context, args map[string]any) tools.Result {
	path := t.resolver.Resolve(tools.StringArg(args, "path"))
	data, err := os.ReadFile(path)
	if err != nil {
		return tools.Errorf("read %s: %v", path, err)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return tools.OK("path", path, "content", content)
}

// WriteTool implements write_file. Every write is gated.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write_file tool anchored at the workspace root.
func NewWriteTool(root string) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: root}}
}

func (t *WriteTool) Name() string { return "write_file" }

func (t *WriteTool) Description() string {
	return "Write content to a file, creating it if needed. Requires operator approval."
}

func (t *WriteTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path to write (relative to the workspace or absolute).",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "Full file content.",
		},
	}, "path", "content")
}

func (t *WriteTool) RequiresApproval(map[string]any) bool { return true }

func (t *WriteTool) Execute(_ context.Context, args map[string]any) tools.Result {
	path := t.resolver.Resolve(tools.StringArg(args, "path"))
	content := tools.StringArg(args, "content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return tools.Errorf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return tools.Errorf("write %s: %v", path, err)
	}
	return tools.OK("path", path, "bytes", len(content))
}

// ListTool implements list_directory.
type ListTool struct {
	resolver Resolver
}

// NewListTool creates a list_directory tool anchored at the workspace root.
func NewListTool(root string) *ListTool {
	return &ListTool{resolver: Resolver{Root: root}}
}

func (t *ListTool) Name() string { return "list_directory" }

func (t *ListTool) Description() string {
	return "List the entries of a directory."
}

func (t *ListTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Directory to list (defaults to the workspace root).",
		},
	})
}

func (t *ListTool) RequiresApproval(map[string]any) bool { return false }

func (t *ListTool) Execute(_ context.Context, args map[string]any) tools.Result {
	path := t.resolver.Resolve(tools.StringArg(args, "path"))
	entries, err := os.ReadDir(path)
	if err != nil {
		return tools.Errorf("list %s: %v", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return tools.OK("path", path, "entries", names)
}

// MkdirTool implements create_directory.
type MkdirTool struct {
	resolver Resolver
}

// NewMkdirTool creates a create_directory tool anchored at the workspace root.
func NewMkdirTool(root string) *MkdirTool {
	return &MkdirTool{resolver: Resolver{Root: root}}
}

func (t *MkdirTool) Name() string { return "create_directory" }

func (t *MkdirTool) Description() string {
	return "Create a directory, including parents."
}

func (t *MkdirTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Directory path to create.",
		},
	}, "path")
}

func (t *MkdirTool) RequiresApproval(map[string]any) bool { return false }

func (t *MkdirTool) Execute(_ context.Context, args map[string]any) tools.Result {
	path := t.resolver.Resolve(tools.StringArg(args, "path"))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return tools.Errorf("create %s: %v", path, err)
	}
	return tools.OK("path", path)
}
