package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/conclave/internal/config"
	"github.com/haasonsaas/conclave/internal/store"
)

// buildSessionsCmd creates the "sessions" command group for operators.
func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions",
	}
	cmd.AddCommand(buildSessionsListCmd())
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with status and message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			s := store.New(cfg.TemplatesDir(), cfg.SessionsDir())

			ids, err := s.ListSessions()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tAGENT\tTYPE\tSTATUS\tMESSAGES\tUPDATED")
			for _, id := range ids {
				sess, err := s.ReadSession(id)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t-\tunreadable\t-\t-\n", id)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					sess.ID, sess.AgentID, sess.AgentType, sess.Status,
					len(sess.Messages), sess.Updated.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conclave.yaml", "Path to YAML configuration file")
	return cmd
}
