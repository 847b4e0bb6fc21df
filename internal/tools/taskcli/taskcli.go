// Package taskcli wraps the external todo query/update CLI as three safe
// tools: query_tasks, create_task and update_task. The CLI is a black box;
// its stdout is passed back to the model verbatim.
package taskcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/conclave/internal/tools"
)

const cliTimeout = 30 * time.Second

// runner executes the task CLI; swapped out in tests.
type runner func(ctx context.Context, bin string, args ...string) (string, error)

func defaultRunner(ctx context.Context, bin string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, cliTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %v: %s", bin, strings.Join(args, " "), err, strings.TrimSpace(errOut.String()))
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// QueryTool implements query_tasks.
type QueryTool struct {
	bin string
	run runner
}

// NewQueryTool creates query_tasks over the configured CLI binary.
func NewQueryTool(bin string) *QueryTool {
	return &QueryTool{bin: bin, run: defaultRunner}
}

func (t *QueryTool) Name() string        { return "query_tasks" }
func (t *QueryTool) Description() string { return "Query the shared task store." }

func (t *QueryTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Query expression passed to the task CLI.",
		},
	}, "query")
}

func (t *QueryTool) RequiresApproval(map[string]any) bool { return false }

func (t *QueryTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	out, err := t.run(ctx, t.bin, "query", tools.StringArg(args, "query"))
	if err != nil {
		return tools.Errorf("query tasks: %v", err)
	}
	return tools.OK("output", out)
}

// CreateTool implements create_task. Creating a work item is safe: nothing
// acts on it until an agent picks it up.
type CreateTool struct {
	bin string
	run runner
}

// NewCreateTool creates create_task over the configured CLI binary.
func NewCreateTool(bin string) *CreateTool {
	return &CreateTool{bin: bin, run: defaultRunner}
}

func (t *CreateTool) Name() string        { return "create_task" }
func (t *CreateTool) Description() string { return "Create a work item in the shared task store." }

func (t *CreateTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"title": map[string]any{
			"type":        "string",
			"description": "Short task title.",
		},
		"priority": map[string]any{
			"type":        "string",
			"description": "Priority label (e.g. P0..P3).",
		},
		"stakeholders": map[string]any{
			"type":        "string",
			"description": "Comma-separated stakeholder handles.",
		},
		"tags": map[string]any{
			"type":        "string",
			"description": "Comma-separated tags (optional).",
		},
		"prompt": map[string]any{
			"type":        "string",
			"description": "Longer work description handed to the executing agent (optional).",
		},
	}, "title", "priority", "stakeholders")
}

func (t *CreateTool) RequiresApproval(map[string]any) bool { return false }

func (t *CreateTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	cliArgs := []string{
		"create",
		"--title", tools.StringArg(args, "title"),
		"--priority", tools.StringArg(args, "priority"),
		"--stakeholders", tools.StringArg(args, "stakeholders"),
	}
	if tags := tools.StringArg(args, "tags"); tags != "" {
		cliArgs = append(cliArgs, "--tags", tags)
	}
	if prompt := tools.StringArg(args, "prompt"); prompt != "" {
		cliArgs = append(cliArgs, "--prompt", prompt)
	}

	out, err := t.run(ctx, t.bin, cliArgs...)
	if err != nil {
		return tools.Errorf("create task: %v", err)
	}
	return tools.OK("output", out, "title", tools.StringArg(args, "title"))
}

// UpdateTool implements update_task.
type UpdateTool struct {
	bin string
	run runner
}

// NewUpdateTool creates update_task over the configured CLI binary.
func NewUpdateTool(bin string) *UpdateTool {
	return &UpdateTool{bin: bin, run: defaultRunner}
}

func (t *UpdateTool) Name() string        { return "update_task" }
func (t *UpdateTool) Description() string { return "Update a work item in the shared task store." }

func (t *UpdateTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Update expression passed to the task CLI.",
		},
	}, "query")
}

func (t *UpdateTool) RequiresApproval(map[string]any) bool { return false }

func (t *UpdateTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	out, err := t.run(ctx, t.bin, "update", tools.StringArg(args, "query"))
	if err != nil {
		return tools.Errorf("update task: %v", err)
	}
	return tools.OK("output", out)
}
