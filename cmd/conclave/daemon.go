package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/conclave/internal/agent"
	"github.com/haasonsaas/conclave/internal/config"
	"github.com/haasonsaas/conclave/internal/ledger"
	"github.com/haasonsaas/conclave/internal/llm"
	"github.com/haasonsaas/conclave/internal/orchestrator"
	"github.com/haasonsaas/conclave/internal/policy"
	"github.com/haasonsaas/conclave/internal/store"
	"github.com/haasonsaas/conclave/internal/tools"
	"github.com/haasonsaas/conclave/internal/tools/files"
	"github.com/haasonsaas/conclave/internal/tools/introspect"
	"github.com/haasonsaas/conclave/internal/tools/message"
	"github.com/haasonsaas/conclave/internal/tools/shell"
	"github.com/haasonsaas/conclave/internal/tools/slackbridge"
	"github.com/haasonsaas/conclave/internal/tools/taskcli"
)

// buildDaemonCmd creates the "daemon" command: watch mode by default, one
// reconciliation pass with --pump.
func buildDaemonCmd() *cobra.Command {
	var (
		configPath string
		pump       bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the orchestrator",
		Long: `Run the orchestrator over the file tree at the configured root.

Without flags the daemon watches sessions/ and tasks/ and reacts to file
changes until it receives SIGINT/SIGTERM. With --pump it performs exactly
one reconciliation pass (check-in evaluation, pending rebuild, decision
scan, one advancement per session) and exits.`,
		Example: `  # watch mode
  conclave daemon

  # one deterministic pass
  conclave daemon --pump`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := setupLogging(debug)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsureLayout(); err != nil {
				return fmt.Errorf("bootstrap layout: %w", err)
			}

			client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, log)
			if err != nil {
				return err
			}

			orch, err := buildOrchestrator(cfg, client)
			if err != nil {
				return err
			}

			if pump {
				return orch.Pump(cmd.Context())
			}
			return orch.Watch(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conclave.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&pump, "pump", false, "Run one reconciliation pass and exit")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildOrchestrator wires the store, ledger, tool registry, advancer and
// orchestrator from configuration.
func buildOrchestrator(cfg *config.Config, client llm.CompletionClient) (*orchestrator.Orchestrator, error) {
	s := store.New(cfg.TemplatesDir(), cfg.SessionsDir())
	l := ledger.New(cfg.ApprovalsPath())

	allowlist, err := policy.LoadAllowlist(cfg.AllowlistPath())
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg, s, allowlist)
	if err != nil {
		return nil, err
	}

	adv := agent.New(s, l, registry, client, nil)
	return orchestrator.New(cfg, s, l, adv, nil), nil
}

// buildRegistry registers the canonical tool set.
func buildRegistry(cfg *config.Config, s *store.Store, allowlist *policy.Allowlist) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	bridge := slackbridge.NewBridge(cfg.InboxDir(), cfg.SlackChannel, cfg.SlackToken)

	all := []tools.Tool{
		files.NewReadTool(cfg.Workspace),
		files.NewWriteTool(cfg.Workspace),
		files.NewListTool(cfg.Workspace),
		files.NewMkdirTool(cfg.Workspace),
		shell.NewExecTool(allowlist, cfg.Workspace),
		taskcli.NewQueryTool(cfg.TaskCLI),
		taskcli.NewCreateTool(cfg.TaskCLI),
		taskcli.NewUpdateTool(cfg.TaskCLI),
		message.NewSendTool(),
		slackbridge.NewSendTool(bridge),
		slackbridge.NewReadTool(bridge),
		introspect.NewListTool(s),
		introspect.NewReadTool(s),
		introspect.NewEditTool(s),
	}
	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
