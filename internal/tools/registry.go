package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
)

// MaxArgsSize bounds the serialized size of a tool-call argument object.
const MaxArgsSize = 1 << 20

// Registry holds the declared tools with thread-safe registration and
// lookup, compiles each tool's parameter schema once, and validates
// arguments before execution.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, replacing any existing tool of the same name. The
// declared schema is compiled eagerly so a bad schema fails loudly at
// wiring time instead of mid-conversation.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	schema, err := jsonschema.CompileString(name+".schema.json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.compiled[name] = schema
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiresApproval reports whether the named tool gates this invocation.
// Unknown tools gate by definition: nothing unvetted runs unattended.
func (r *Registry) RequiresApproval(name string, args map[string]any) bool {
	tool, ok := r.Get(name)
	if !ok {
		return true
	}
	return tool.RequiresApproval(args)
}

// ValidateArgs checks an argument object against the tool's declared schema.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tool %s", name)
	}

	// Round-trip through JSON so yaml-decoded numbers validate uniformly.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("serialize args: %w", err)
	}
	if len(data) > MaxArgsSize {
		return fmt.Errorf("arguments exceed %d bytes", MaxArgsSize)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("reparse args: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return nil
}

// Execute validates and runs a tool by name. All failures come back as
// Result records, never as panics or Go errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Errorf("tool %s panicked: %v", name, rec)
		}
	}()

	tool, ok := r.Get(name)
	if !ok {
		return Errorf("unknown tool: %s", name)
	}
	if err := r.ValidateArgs(name, args); err != nil {
		return Errorf("%v", err)
	}
	return tool.Execute(ctx, args)
}

// WireDefinitions renders the named subset of tools (or all tools when
// names is empty) as the function definitions the completion service
// accepts. Unknown names are skipped.
func (r *Registry) WireDefinitions(names []string) []openai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := names
	if len(selected) == 0 {
		selected = make([]string, 0, len(r.tools))
		for name := range r.tools {
			selected = append(selected, name)
		}
		sort.Strings(selected)
	}

	defs := make([]openai.Tool, 0, len(selected))
	for _, name := range selected {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		var params map[string]any
		if err := json.Unmarshal(tool.Schema(), &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}
