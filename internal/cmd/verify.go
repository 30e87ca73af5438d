package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/parser"
	"github.com/harrison/foreman/internal/verify"
)

// NewVerifyCommand creates the verify command
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [work-item-file]",
		Short: "Run the verification pipeline without generating changes",
		Long: `Run the configured verification steps (test, lint, build, typecheck)
against the project as it stands. With a work-item file, that item's
verification overrides apply.

No escalation report is written and nothing is retried; the command exits
non-zero when any step fails.

Examples:
  foreman verify
  foreman verify work/task-101.md
  foreman verify --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: verifyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .foreman/config.yaml)")
	cmd.Flags().String("project-root", "", "Working directory for verification commands")
	cmd.Flags().Bool("json", false, "Print the full report as JSON")

	return cmd
}

func verifyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	if root, _ := cmd.Flags().GetString("project-root"); root != "" {
		cfg.ProjectRoot = root
	}

	var item *models.WorkItem
	taskID := "adhoc-verify"
	if len(args) == 1 {
		item, err = parser.NewWorkItemParser().ParseFile(args[0])
		if err != nil {
			return err
		}
		taskID = item.ID
	}

	pipelineCfg, err := pipelineConfigFor(cfg, item)
	if err != nil {
		return err
	}
	// Ad-hoc verification reports; it never rewrites the project.
	pipelineCfg.MaxFixIterations = 0

	console := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	runner := executor.NewShellCommandRunner(cfg.ProjectRoot)
	pipeline, err := verify.NewPipeline(pipelineCfg, runner, verify.WithLogger(console))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := pipeline.Run(ctx, taskID, item)
	var escErr *verify.EscalationRequiredError
	if runErr != nil && !errors.As(runErr, &escErr) {
		return runErr
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		raw, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	} else {
		order := pipelineCfg.Steps
		if len(order) == 0 {
			order = verify.DefaultStepOrder
		}
		for _, step := range order {
			if sr := report.Steps[step]; sr != nil {
				console.StepCompleted(string(step), sr.Passed, sr.Duration)
			}
		}
	}

	if escErr != nil {
		return fmt.Errorf("verification failed: %v", escErr)
	}
	return nil
}
