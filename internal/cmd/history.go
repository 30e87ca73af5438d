package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show recorded attempts and outcomes for a task",
		Args:  cobra.ExactArgs(1),
		RunE:  historyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .foreman/config.yaml)")
	return cmd
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := history.NewStore(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	taskID := args[0]
	out := cmd.OutOrStdout()

	attempts, err := store.AttemptsForTask(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	outcomes, err := store.OutcomesForTask(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 && len(outcomes) == 0 {
		fmt.Fprintf(out, "No history for task %s.\n", taskID)
		return nil
	}

	if len(attempts) > 0 {
		fmt.Fprintf(out, "Attempts:\n")
		for _, a := range attempts {
			status := "ok"
			if !a.Success {
				status = fmt.Sprintf("failed (%s)", a.ErrorCode)
			}
			fmt.Fprintf(out, "  %s  #%d %-10s %s", a.Timestamp.Format(time.RFC3339), a.Attempt, a.Step, status)
			if a.Delay > 0 {
				fmt.Fprintf(out, " next in %v", a.Delay)
			}
			fmt.Fprintln(out)
		}
	}

	if len(outcomes) > 0 {
		fmt.Fprintf(out, "Outcomes:\n")
		for _, o := range outcomes {
			status := "delivered"
			if !o.Success {
				status = fmt.Sprintf("failed (%s)", o.ErrorCode)
				if o.Escalated {
					status += ", escalated"
				}
			}
			fmt.Fprintf(out, "  %s  %s after %d attempt(s) in %v\n",
				o.Timestamp.Format(time.RFC3339), status, o.Attempts, o.Duration.Round(time.Second))
		}
	}
	return nil
}
