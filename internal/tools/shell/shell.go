// Package shell provides execute_command: shell execution that runs
// unattended only when the command matches the operator allowlist, and
// otherwise reports that it requires approval.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/conclave/internal/policy"
	"github.com/haasonsaas/conclave/internal/tools"
)

// DefaultTimeout bounds a single command execution.
const DefaultTimeout = 2 * time.Minute

// Validation patterns for the executable token, adapted from the exec
// safety rules: control characters and null bytes never belong in a
// command, and a leading dash is option injection.
var (
	controlChars = regexp.MustCompile(`[\r\n]`)

	errEmptyCommand = errors.New("command is empty")
	errNullByte     = errors.New("command contains a null byte")
	errControlChar  = errors.New("command contains control characters")
	errOptionFirst  = errors.New("command starts with an option flag")
)

// validateCommand rejects commands no operator should ever see requested.
func validateCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return errEmptyCommand
	}
	if strings.Contains(trimmed, "\x00") {
		return errNullByte
	}
	if controlChars.MatchString(trimmed) {
		return errControlChar
	}
	if strings.HasPrefix(trimmed, "-") {
		return errOptionFirst
	}
	return nil
}

// ExecTool implements execute_command.
type ExecTool struct {
	allowlist *policy.Allowlist
	workdir   string
	timeout   time.Duration
}

// NewExecTool creates the shell tool over the given allowlist. workdir is
// the default cwd when the call does not specify one.
func NewExecTool(allowlist *policy.Allowlist, workdir string) *ExecTool {
	return &ExecTool{allowlist: allowlist, workdir: workdir, timeout: DefaultTimeout}
}

func (t *ExecTool) Name() string { return "execute_command" }

func (t *ExecTool) Description() string {
	return "Run a shell command. Commands outside the allowlist need operator approval."
}

func (t *ExecTool) Schema() json.RawMessage {
	return tools.ObjectSchema(map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "Shell command to run.",
		},
		"cwd": map[string]any{
			"type":        "string",
			"description": "Working directory (optional).",
		},
	}, "command")
}

// RequiresApproval gates every command the allowlist does not cover.
func (t *ExecTool) RequiresApproval(args map[string]any) bool {
	command := tools.StringArg(args, "command")
	return !t.allowlist.Matches(command)
}

// Execute runs the command under /bin/sh with a bounded timeout. Failures
// (bad command, non-zero exit) come back as structured results.
func (t *ExecTool) Execute(ctx context.Context, args map[string]any) tools.Result {
	command := tools.StringArg(args, "command")
	if err := validateCommand(command); err != nil {
		return tools.Errorf("unsafe command: %v", err)
	}

	cwd := tools.StringArg(args, "cwd")
	if cwd == "" {
		cwd = t.workdir
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := tools.Result{
		"success": err == nil,
		"command": command,
		"stdout":  strings.TrimRight(stdout.String(), "\n"),
		"stderr":  strings.TrimRight(stderr.String(), "\n"),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			// The kill shows up as an ExitError too, so check the deadline
			// first.
			result["error"] = "command timed out"
		} else if errors.As(err, &exitErr) {
			result["exit_code"] = exitErr.ExitCode()
			result["error"] = "command exited non-zero"
		} else {
			result["error"] = err.Error()
		}
	} else {
		result["exit_code"] = 0
	}
	return result
}
