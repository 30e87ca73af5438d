package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/escalate"
)

// NewEscalationsCommand creates the escalations command group
func NewEscalationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "Inspect persisted escalation reports",
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .foreman/config.yaml)")

	cmd.AddCommand(newEscalationsListCommand())
	cmd.AddCommand(newEscalationsShowCommand())
	return cmd
}

func newEscalationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks with an escalation report",
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter, err := reporterFromConfig(cmd)
			if err != nil {
				return err
			}

			ids, err := reporter.List()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No escalations.")
				return nil
			}

			for _, id := range ids {
				report, err := reporter.Load(id)
				if err != nil || report == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  (unreadable)\n", id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %-22s %s\n",
					report.Timestamp.Format(time.RFC3339), report.Error.Category, report.Error.Code, id)
			}
			return nil
		},
	}
}

func newEscalationsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one escalation report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter, err := reporterFromConfig(cmd)
			if err != nil {
				return err
			}

			report, err := reporter.Load(args[0])
			if err != nil {
				return err
			}
			if report == nil {
				return fmt.Errorf("no escalation report for task %s", args[0])
			}

			raw, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
}

func reporterFromConfig(cmd *cobra.Command) (*escalate.Reporter, error) {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	return escalate.NewReporter(cfg.EscalationDir), nil
}
