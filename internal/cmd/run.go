package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/checkpoint"
	"github.com/harrison/foreman/internal/classify"
	"github.com/harrison/foreman/internal/codegen"
	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/escalate"
	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/gitutil"
	"github.com/harrison/foreman/internal/history"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/parser"
	"github.com/harrison/foreman/internal/verify"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <work-item-file>...",
		Short: "Execute work items end to end",
		Long: `Execute one or more work items: generate the change with the configured
code generator, verify it with the project's test/lint/build/typecheck
commands, retry transient failures with backoff, and escalate failures that
automation cannot resolve.

Configuration is loaded from .foreman/config.yaml if present.

Examples:
  foreman run work/task-101.md
  foreman run work/*.md
  foreman run --dry-run work/task-101.md   # Parse and validate only
  foreman run --verbose work/task-101.md   # Show detailed progress`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .foreman/config.yaml)")
	cmd.Flags().Bool("dry-run", false, "Parse and validate work items without executing")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("project-root", "", "Working directory for verification and generator commands")

	return cmd
}

// itemResult is the per-item line in the run summary.
type itemResult struct {
	item     *models.WorkItem
	attempts int
	duration time.Duration
	err      error
	fatal    *classify.ErrorInfo
}

func (r itemResult) failed() bool {
	return r.err != nil || r.fatal != nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("log-dir"); dir != "" {
		cfg.LogDir = dir
	}
	if root, _ := cmd.Flags().GetString("project-root"); root != "" {
		cfg.ProjectRoot = root
	}

	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	console := logger.NewConsoleLogger(cmd.OutOrStdout(), level)

	items, err := parseWorkItems(args)
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		for _, item := range items {
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s) branch=%s criteria=%d\n",
				item.ID, item.Name, gitutil.DeriveBranchName(item), len(item.AcceptanceCriteria))
		}
		return nil
	}

	// The file log captures everything; the console stays at the chosen level.
	fileLog, err := logger.NewFileLogger(cfg.LogDir, "trace")
	if err != nil {
		return fmt.Errorf("failed to set up run log: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMulti(console, fileLog)

	hist, err := history.NewStore(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	checkpoints := checkpoint.NewStore(cfg.CheckpointDir)
	reporter := escalate.NewReporter(cfg.EscalationDir,
		escalate.WithLogger(log),
		escalate.WithCallback(func(rep *escalate.Report) {
			console.EscalationRaised(rep.TaskID, rep.SuggestedAction)
		}))

	generator := &codegen.CLIGenerator{
		BinPath: cfg.Generator.Command,
		WorkDir: cfg.ProjectRoot,
		Timeout: cfg.Generator.Timeout,
	}
	runner := &executor.ShellCommandRunner{WorkDir: cfg.ProjectRoot}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("run started: %d work item(s), log %s", len(items), fileLog.RunFile())

	var results []itemResult
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		results = append(results, executeItem(ctx, cfg, item, deps{
			console:     console,
			log:         log,
			checkpoints: checkpoints,
			reporter:    reporter,
			hist:        hist,
			generator:   generator,
			runner:      runner,
		}))
	}

	printSummary(cmd, results)

	for _, res := range results {
		if res.failed() {
			return fmt.Errorf("run finished with failures")
		}
	}
	return nil
}

// deps bundles the shared components handed to each item execution.
type deps struct {
	console     *logger.ConsoleLogger
	log         *logger.Multi
	checkpoints *checkpoint.Store
	reporter    *escalate.Reporter
	hist        *history.Store
	generator   codegen.Generator
	runner      executor.CommandRunner
}

// executeItem runs one work item under retry: generation followed by
// verification, both inside a single retried operation so a verification
// failure regenerates rather than re-verifying stale changes.
func executeItem(ctx context.Context, cfg *config.Config, item *models.WorkItem, d deps) itemResult {
	start := time.Now()
	res := itemResult{item: item}

	branch := gitutil.DeriveBranchName(item)
	d.log.Infof("task %s: starting %q on branch %s", item.ID, item.Name, branch)

	policy, err := retryPolicyFor(cfg, item)
	if err != nil {
		res.err = err
		return res
	}
	pipelineCfg, err := pipelineConfigFor(cfg, item)
	if err != nil {
		res.err = err
		return res
	}

	pipeline, err := verify.NewPipeline(pipelineCfg, d.runner,
		verify.WithEscalator(d.reporter), verify.WithLogger(d.log))
	if err != nil {
		res.err = err
		return res
	}
	exec, err := executor.NewRetryExecutor(policy, d.checkpoints,
		executor.WithEscalator(d.reporter),
		executor.WithHistoryRecorder(d.hist),
		executor.WithLogger(d.log))
	if err != nil {
		res.err = err
		return res
	}

	op := func(ctx context.Context) (interface{}, error) {
		resp, err := d.generator.Generate(ctx, codegen.RequestFromWorkItem(item))
		if err != nil {
			return nil, err
		}
		d.log.Infof("task %s: generator proposed %d change(s)", item.ID, len(resp.Changes))

		report, err := pipeline.Run(ctx, item.ID, item)
		if err != nil {
			return nil, err
		}
		return report, nil
	}

	outcome, err := exec.Execute(ctx, op, executor.TaskContext{
		TaskID:   item.ID,
		Step:     "deliver",
		WorkItem: item,
	})
	res.duration = time.Since(start)

	switch {
	case err != nil:
		res.err = err
		if outcome != nil {
			res.attempts = outcome.Attempts
		}
		var maxErr *executor.MaxRetriesError
		if errors.As(err, &maxErr) {
			res.attempts = maxErr.Attempts
		}
	case !outcome.Success:
		res.attempts = outcome.Attempts
		res.fatal = outcome.Error
	default:
		res.attempts = outcome.Attempts
		if report, ok := outcome.Result.(*verify.Report); ok {
			order := pipelineCfg.Steps
			if len(order) == 0 {
				order = verify.DefaultStepOrder
			}
			for _, step := range order {
				if sr := report.Steps[step]; sr != nil {
					d.console.StepCompleted(string(step), sr.Passed, sr.Duration)
				}
			}
		}
		d.log.Infof("task %s: delivered in %v (%d attempt(s))", item.ID, res.duration.Round(time.Second), res.attempts)
	}

	recordOutcome(ctx, d, item, res)
	return res
}

// recordOutcome writes the terminal outcome row. Failures to record are
// logged and otherwise ignored; history is diagnostics, not control flow.
func recordOutcome(ctx context.Context, d deps, item *models.WorkItem, res itemResult) {
	rec := &history.OutcomeRecord{
		TaskID:    item.ID,
		Step:      "deliver",
		Success:   !res.failed(),
		Attempts:  res.attempts,
		Escalated: res.failed(),
		Duration:  res.duration,
		Timestamp: time.Now(),
	}
	switch {
	case res.fatal != nil:
		rec.ErrorCode = res.fatal.Code
		rec.ErrorMessage = res.fatal.Message
	case res.err != nil:
		info := classify.BuildErrorInfo(res.err, nil)
		rec.ErrorCode = info.Code
		rec.ErrorMessage = info.Message
	}
	if err := d.hist.RecordOutcome(ctx, rec); err != nil {
		d.log.Warnf("task %s: failed to record outcome: %v", item.ID, err)
	}
}

// parseWorkItems loads and validates every work-item file, rejecting
// duplicate IDs up front so two items cannot share checkpoint state.
func parseWorkItems(paths []string) ([]*models.WorkItem, error) {
	p := parser.NewWorkItemParser()
	seen := make(map[string]string)

	var items []*models.WorkItem
	for _, path := range paths {
		item, err := p.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate work item id %s (already defined in %s)", path, item.ID, prev)
		}
		seen[item.ID] = path
		items = append(items, item)
	}
	return items, nil
}

func printSummary(cmd *cobra.Command, results []itemResult) {
	out := cmd.OutOrStdout()
	var failed []itemResult
	for _, res := range results {
		if res.failed() {
			failed = append(failed, res)
		}
	}

	fmt.Fprintf(out, "\nRun Summary:\n")
	fmt.Fprintf(out, "  Total items: %d\n", len(results))
	fmt.Fprintf(out, "  Delivered: %d\n", len(results)-len(failed))
	fmt.Fprintf(out, "  Failed: %d\n", len(failed))

	if len(failed) > 0 {
		fmt.Fprintf(out, "\nFailed Items:\n")
		for _, res := range failed {
			reason := "unknown"
			switch {
			case res.fatal != nil:
				reason = res.fatal.Code
			case res.err != nil:
				reason = res.err.Error()
			}
			fmt.Fprintf(out, "  - %s: %s (%s)\n", res.item.ID, res.item.Name, reason)
		}
	}
}

// loadConfigFromFlags loads config from --config or the default location.
func loadConfigFromFlags(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadFromRoot(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
