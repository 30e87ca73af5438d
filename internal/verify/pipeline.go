package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/foreman/internal/classify"
	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/models"
)

// Logger is the minimal logging surface the pipeline needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// EscalationRequiredError is raised when one or more steps still fail after
// fix attempts are exhausted. It carries the failed step names and the full
// report so the human-facing escalation is self-contained. It unwraps to a
// recoverable VerificationError for classification.
type EscalationRequiredError struct {
	TaskID      string
	FailedSteps []Step
	Report      *Report

	cause *classify.VerificationError
}

// Error implements the error interface for EscalationRequiredError.
func (e *EscalationRequiredError) Error() string {
	return fmt.Sprintf("task %s: verification requires escalation: %s failed",
		e.TaskID, strings.Join(StepNames(e.FailedSteps), ", "))
}

// Unwrap returns the underlying verification error.
func (e *EscalationRequiredError) Unwrap() error {
	return e.cause
}

// Config holds the pipeline settings for one run.
type Config struct {
	// Steps is the ordered subset of steps to run. Empty means
	// DefaultStepOrder. Steps not listed here have no entry in the report.
	Steps []Step

	// Commands maps each step to the shell command that runs it.
	Commands map[Step]string

	// FixCommands maps a step to the command used for auto-fix attempts.
	// When unset for lint, the lint command with " --fix" appended is used.
	FixCommands map[Step]string

	// AutoFixSteps enables the auto-fix loop per step type. Nil enables it
	// for lint only, matching the fix-suggestion rules.
	AutoFixSteps map[Step]bool

	// MaxFixIterations bounds the fix/re-run loop per step. Zero disables
	// fixing entirely.
	MaxFixIterations int

	// ContinueOnFailure keeps running later steps after a failure so all
	// failures are aggregated into a single escalation.
	ContinueOnFailure bool

	// StepTimeout bounds each step command. Zero means unbounded.
	StepTimeout time.Duration
}

// steps returns the requested step order.
func (c Config) steps() []Step {
	if len(c.Steps) == 0 {
		return DefaultStepOrder
	}
	return c.Steps
}

// autoFixEnabled reports whether the fix loop may run for a step.
func (c Config) autoFixEnabled(step Step) bool {
	if c.AutoFixSteps == nil {
		return step == StepLint
	}
	return c.AutoFixSteps[step]
}

// fixCommand returns the auto-fix command for a step, or "" when none
// applies.
func (c Config) fixCommand(step Step) string {
	if cmd := c.FixCommands[step]; cmd != "" {
		return cmd
	}
	if step == StepLint {
		if cmd := c.Commands[StepLint]; cmd != "" {
			return cmd + " --fix"
		}
	}
	return ""
}

// Pipeline executes verification steps as external commands and attempts
// bounded automatic remediation. It never retries itself; the retry
// decision belongs to the retry executor above it.
type Pipeline struct {
	cfg       Config
	runner    executor.CommandRunner
	escalator executor.Escalator
	logger    Logger
	clock     func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithEscalator attaches the escalation reporter invoked when a run ends
// escalated.
func WithEscalator(e executor.Escalator) PipelineOption {
	return func(p *Pipeline) { p.escalator = e }
}

// WithLogger attaches a logger for step lifecycle events.
func WithLogger(l Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline constructs a Pipeline. Every requested step must have a
// command configured.
func NewPipeline(cfg Config, runner executor.CommandRunner, opts ...PipelineOption) (*Pipeline, error) {
	if runner == nil {
		return nil, fmt.Errorf("verification pipeline requires a command runner")
	}
	if cfg.MaxFixIterations < 0 {
		return nil, fmt.Errorf("max fix iterations must be >= 0, got %d", cfg.MaxFixIterations)
	}
	for _, step := range cfg.steps() {
		if cfg.Commands[step] == "" {
			return nil, fmt.Errorf("no command configured for verification step %q", step)
		}
	}

	p := &Pipeline{
		cfg:    cfg,
		runner: runner,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes the requested steps in order for taskID.
//
// A run where every requested step passes returns a report with
// FinalStatus passed and a nil error. A run with remaining failures
// returns the report alongside an *EscalationRequiredError and, as a side
// effect, hands the aggregated failure to the escalation reporter.
func (p *Pipeline) Run(ctx context.Context, taskID string, item *models.WorkItem) (*Report, error) {
	start := p.clock()
	report := &Report{
		TaskID: taskID,
		Steps:  make(map[Step]*StepResult),
	}

	order := p.cfg.steps()
	for _, step := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := p.runStepWithFixes(ctx, step, report)
		report.Steps[step] = result
		p.attachSummaries(step, result, report)

		if !result.Passed && !p.cfg.ContinueOnFailure {
			break
		}
	}

	report.Duration = p.clock().Sub(start)
	report.Timestamp = p.clock()

	failed := report.FailedSteps(order)
	if len(failed) == 0 {
		report.FinalStatus = StatusPassed
		p.infof("task %s: verification passed (%d steps)", taskID, len(report.Steps))
		return report, nil
	}

	report.FinalStatus = StatusEscalated
	cause := &classify.VerificationError{
		Steps:   StepNames(failed),
		Message: fmt.Sprintf("verification failed: %s", strings.Join(StepNames(failed), ", ")),
	}

	// Collect all failures, escalate once.
	if p.escalator != nil {
		info := classify.BuildErrorInfo(cause, map[string]string{"fix_attempts": fmt.Sprintf("%d", len(report.FixAttempts))})
		if _, err := p.escalator.Escalate(taskID, item, info); err != nil {
			p.warnf("task %s: failed to persist escalation report: %v", taskID, err)
		}
	}

	return report, &EscalationRequiredError{
		TaskID:      taskID,
		FailedSteps: failed,
		Report:      report,
		cause:       cause,
	}
}

// runStepWithFixes runs one step and, when it fails, drives the bounded
// fix/re-run loop. The iteration counter is explicit so the fix budget is
// enforced per step, not globally.
func (p *Pipeline) runStepWithFixes(ctx context.Context, step Step, report *Report) *StepResult {
	command := p.cfg.Commands[step]
	result := p.runStep(ctx, step, command)
	if result.Passed {
		p.debugf("step %s passed in %v", step, result.Duration)
		return result
	}

	for iteration := 1; !result.Passed && iteration <= p.cfg.MaxFixIterations && p.cfg.autoFixEnabled(step); iteration++ {
		diags := ParseStepOutput(step, result.Output)
		suggestion := AutoSuggestion(SuggestFixes(diags, p.cfg.fixCommand(step)))
		if suggestion == nil {
			p.debugf("step %s: no auto-fix available, stopping fix loop", step)
			break
		}

		p.infof("step %s: applying fix (iteration %d): %s", step, iteration, suggestion.Command)
		if _, err := p.runner.Run(ctx, suggestion.Command); err != nil {
			p.warnf("step %s: fix command failed: %v", step, err)
		}

		result = p.runStep(ctx, step, command)
		report.FixAttempts = append(report.FixAttempts, FixAttempt{
			Step:       step,
			Iteration:  iteration,
			Suggestion: *suggestion,
			Passed:     result.Passed,
		})
	}

	if !result.Passed {
		p.warnf("step %s failed (exit %d)", step, result.ExitCode)
	}
	return result
}

// runStep executes one step command with the configured timeout and
// captures exit code and combined output.
func (p *Pipeline) runStep(ctx context.Context, step Step, command string) *StepResult {
	stepCtx := ctx
	if p.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, p.cfg.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	output, err := p.runner.Run(stepCtx, command)

	return &StepResult{
		Step:     step,
		Passed:   err == nil,
		ExitCode: executor.ExitCode(err),
		Output:   output,
		Duration: time.Since(start),
	}
}

// attachSummaries opportunistically extracts test/lint summaries from the
// step's final output. Unrecognized output leaves the summary nil.
func (p *Pipeline) attachSummaries(step Step, result *StepResult, report *Report) {
	switch step {
	case StepTest:
		if summary := ParseTestSummary(result.Output); summary != nil {
			report.TestSummary = summary
		}
	case StepLint:
		if summary := ParseLintSummary(result.Output); summary != nil {
			report.LintSummary = summary
		}
	}
}

func (p *Pipeline) debugf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debugf(format, args...)
	}
}

func (p *Pipeline) infof(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Infof(format, args...)
	}
}

func (p *Pipeline) warnf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warnf(format, args...)
	}
}
