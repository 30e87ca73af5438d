package verify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/classify"
	"github.com/harrison/foreman/internal/escalate"
	"github.com/harrison/foreman/internal/models"
)

// scriptedRunner returns canned results per command, in order, so tests can
// model a step that fails and then passes after a fix.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string][]runResult
	calls   []string
}

type runResult struct {
	output string
	err    error
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{results: make(map[string][]runResult)}
}

func (r *scriptedRunner) script(command string, output string, err error) {
	r.results[command] = append(r.results[command], runResult{output, err})
}

func (r *scriptedRunner) Run(ctx context.Context, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, command)

	queue := r.results[command]
	if len(queue) == 0 {
		return "", nil
	}
	next := queue[0]
	if len(queue) > 1 {
		r.results[command] = queue[1:]
	}
	return next.output, next.err
}

type recordingEscalator struct {
	mu    sync.Mutex
	infos []classify.ErrorInfo
}

func (e *recordingEscalator) Escalate(taskID string, item *models.WorkItem, info classify.ErrorInfo) (*escalate.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.infos = append(e.infos, info)
	return &escalate.Report{TaskID: taskID, Error: info}, nil
}

func allStepsConfig() Config {
	return Config{
		Commands: map[Step]string{
			StepTest:      "run tests",
			StepLint:      "run lint",
			StepBuild:     "run build",
			StepTypecheck: "run typecheck",
		},
	}
}

func TestPipelineAllStepsPass(t *testing.T) {
	runner := newScriptedRunner()
	p, err := NewPipeline(allStepsConfig(), runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, report.FinalStatus)
	assert.Len(t, report.Steps, 4)
	for _, step := range DefaultStepOrder {
		require.Contains(t, report.Steps, step)
		assert.True(t, report.Steps[step].Passed)
	}
	assert.Equal(t, []string{"run tests", "run lint", "run build", "run typecheck"}, runner.calls)
}

func TestPipelineSubsetOfSteps(t *testing.T) {
	cfg := allStepsConfig()
	cfg.Steps = []Step{StepTest, StepLint}

	runner := newScriptedRunner()
	p, err := NewPipeline(cfg, runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t2", nil)
	require.NoError(t, err)

	assert.Len(t, report.Steps, 2)
	assert.NotContains(t, report.Steps, StepBuild)
	assert.NotContains(t, report.Steps, StepTypecheck)
}

func TestPipelineFailureStopsWhenNotContinuing(t *testing.T) {
	cfg := allStepsConfig()
	cfg.ContinueOnFailure = false

	runner := newScriptedRunner()
	runner.script("run lint", "src/a.go:1:1: broken beyond fixing (no-unused-vars)", errors.New("exit status 1"))

	esc := &recordingEscalator{}
	p, err := NewPipeline(cfg, runner, WithEscalator(esc))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t3", nil)
	require.Error(t, err)

	var escErr *EscalationRequiredError
	require.ErrorAs(t, err, &escErr)
	assert.Equal(t, "t3", escErr.TaskID)
	assert.Equal(t, []Step{StepLint}, escErr.FailedSteps)
	assert.Same(t, report, escErr.Report)

	// Later steps never ran.
	assert.Len(t, report.Steps, 2)
	assert.NotContains(t, report.Steps, StepBuild)

	assert.Equal(t, StatusEscalated, report.FinalStatus)
	require.Len(t, esc.infos, 1)
	assert.Equal(t, classify.CategoryRecoverable, esc.infos[0].Category)

	// The error classifies as recoverable through its cause.
	assert.Equal(t, classify.CategoryRecoverable, classify.Categorize(err))
}

func TestPipelineContinueOnFailureAggregates(t *testing.T) {
	cfg := allStepsConfig()
	cfg.ContinueOnFailure = true

	runner := newScriptedRunner()
	runner.script("run tests", "--- FAIL: TestX\n1 failed", errors.New("exit status 1"))
	runner.script("run build", "error: cannot link", errors.New("exit status 2"))

	esc := &recordingEscalator{}
	p, err := NewPipeline(cfg, runner, WithEscalator(esc))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t4", nil)
	require.Error(t, err)

	var escErr *EscalationRequiredError
	require.ErrorAs(t, err, &escErr)
	assert.Equal(t, []Step{StepTest, StepBuild}, escErr.FailedSteps)

	// All four steps ran despite the failures, one escalation total.
	assert.Len(t, report.Steps, 4)
	assert.Len(t, esc.infos, 1)
	assert.Contains(t, esc.infos[0].Context["failed_steps"], "test")
	assert.Contains(t, esc.infos[0].Context["failed_steps"], "build")
}

func TestPipelineFixLoopSucceeds(t *testing.T) {
	cfg := allStepsConfig()
	cfg.Steps = []Step{StepLint}
	cfg.MaxFixIterations = 2

	runner := newScriptedRunner()
	runner.script("run lint", "src/a.go:1:1: Missing semicolon (semi)", errors.New("exit status 1"))
	runner.script("run lint --fix", "fixed 1 problem", nil)
	runner.script("run lint", "clean", nil)

	p, err := NewPipeline(cfg, runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t5", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, report.FinalStatus)
	require.Len(t, report.FixAttempts, 1)
	assert.Equal(t, StepLint, report.FixAttempts[0].Step)
	assert.Equal(t, 1, report.FixAttempts[0].Iteration)
	assert.True(t, report.FixAttempts[0].Passed)
	assert.Equal(t, []string{"run lint", "run lint --fix", "run lint"}, runner.calls)
}

func TestPipelineFixLoopBounded(t *testing.T) {
	cfg := allStepsConfig()
	cfg.Steps = []Step{StepLint}
	cfg.MaxFixIterations = 2

	runner := newScriptedRunner()
	// Lint keeps failing with a fixable rule no matter how often we fix.
	runner.script("run lint", "src/a.go:1:1: Missing semicolon (semi)", errors.New("exit status 1"))

	p, err := NewPipeline(cfg, runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t6", nil)
	require.Error(t, err)

	assert.Equal(t, StatusEscalated, report.FinalStatus)
	assert.Len(t, report.FixAttempts, 2)
	// initial run + 2 * (fix + re-run)
	assert.Len(t, runner.calls, 5)
}

func TestPipelineNoFixForUnfixableDiagnostics(t *testing.T) {
	cfg := allStepsConfig()
	cfg.Steps = []Step{StepTest}
	cfg.MaxFixIterations = 3

	runner := newScriptedRunner()
	runner.script("run tests", "--- FAIL: TestX\nassertion failed", errors.New("exit status 1"))

	p, err := NewPipeline(cfg, runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t7", nil)
	require.Error(t, err)

	assert.Empty(t, report.FixAttempts)
	// Auto-fix defaults to lint only, so the test step ran exactly once.
	assert.Equal(t, []string{"run tests"}, runner.calls)
}

func TestPipelineZeroFixIterations(t *testing.T) {
	cfg := allStepsConfig()
	cfg.Steps = []Step{StepLint}
	cfg.MaxFixIterations = 0

	runner := newScriptedRunner()
	runner.script("run lint", "src/a.go:1:1: Missing semicolon (semi)", errors.New("exit status 1"))

	p, err := NewPipeline(cfg, runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t8", nil)
	require.Error(t, err)
	assert.Empty(t, report.FixAttempts)
	assert.Len(t, runner.calls, 1)
}

func TestPipelineAttachesSummaries(t *testing.T) {
	cfg := allStepsConfig()
	cfg.Steps = []Step{StepTest, StepLint}
	cfg.ContinueOnFailure = true

	runner := newScriptedRunner()
	runner.script("run tests", "12 passed, 1 failed\ncoverage: 90.0%", errors.New("exit status 1"))
	runner.script("run lint", "2 errors, 1 warning found", errors.New("exit status 1"))

	p, err := NewPipeline(cfg, runner)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "t9", nil)
	require.Error(t, err)

	require.NotNil(t, report.TestSummary)
	assert.Equal(t, 12, report.TestSummary.Passed)
	assert.Equal(t, 1, report.TestSummary.Failed)
	require.NotNil(t, report.LintSummary)
	assert.Equal(t, 2, report.LintSummary.Errors)
}

func TestNewPipelineValidation(t *testing.T) {
	_, err := NewPipeline(allStepsConfig(), nil)
	assert.Error(t, err)

	cfg := allStepsConfig()
	cfg.MaxFixIterations = -1
	_, err = NewPipeline(cfg, newScriptedRunner())
	assert.Error(t, err)

	cfg = Config{Steps: []Step{StepTest}}
	_, err = NewPipeline(cfg, newScriptedRunner())
	assert.Error(t, err)
}

func TestPipelineContextCancelled(t *testing.T) {
	runner := newScriptedRunner()
	p, err := NewPipeline(allStepsConfig(), runner)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, "t10", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
