// Package main provides the CLI entry point for the Conclave multi-agent
// orchestrator daemon.
//
// Conclave advances a small population of LLM-backed agent sessions stored
// as human-readable files, executes the tools the models request, and gates
// dangerous operations behind the human-editable approval ledger at
// tasks/approvals.task.md.
//
// # Basic Usage
//
// Run the daemon in watch mode:
//
//	conclave daemon
//
// Run a single deterministic reconciliation pass:
//
//	conclave daemon --pump
//
// # Environment Variables
//
//   - CONCLAVE_ROOT: root of the file tree (default: working directory)
//   - OPENAI_API_KEY: credentials for the chat-completion service
//   - SLACK_BOT_TOKEN: optional token for the slack tools
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "conclave",
		Short:         "File-backed multi-agent orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildDaemonCmd(), buildSessionsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setupLogging configures the process-wide slog handler.
func setupLogging(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
