// Package verify runs the multi-step verification pipeline: external
// test/lint/build/typecheck commands, diagnostic parsing, bounded auto-fix
// attempts, and escalation when failures remain.
package verify

import (
	"fmt"
	"strings"
	"time"
)

// Step identifies one verification step type.
type Step string

// The four supported verification steps.
const (
	StepTest      Step = "test"
	StepLint      Step = "lint"
	StepBuild     Step = "build"
	StepTypecheck Step = "typecheck"
)

// DefaultStepOrder is the order used when the caller does not restrict or
// reorder steps.
var DefaultStepOrder = []Step{StepTest, StepLint, StepBuild, StepTypecheck}

// ParseStep converts a config string to a Step.
func ParseStep(s string) (Step, error) {
	switch Step(strings.ToLower(strings.TrimSpace(s))) {
	case StepTest:
		return StepTest, nil
	case StepLint:
		return StepLint, nil
	case StepBuild:
		return StepBuild, nil
	case StepTypecheck:
		return StepTypecheck, nil
	default:
		return "", fmt.Errorf("unknown verification step %q", s)
	}
}

// StepResult is the outcome of running one step's command.
type StepResult struct {
	Step     Step          `json:"step"`
	Passed   bool          `json:"passed"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Severity of a parsed diagnostic.
type Severity string

// Diagnostic severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a structured finding parsed from a step's raw output.
type Diagnostic struct {
	Step     Step     `json:"step"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
}

// FixKind distinguishes fixes foreman can apply itself from fixes that need
// a human.
type FixKind string

// Fix kinds.
const (
	FixAuto   FixKind = "auto"
	FixManual FixKind = "manual"
)

// FixSuggestion is a proposed remediation derived from diagnostics.
type FixSuggestion struct {
	Kind        FixKind `json:"kind"`
	Command     string  `json:"command,omitempty"`
	Description string  `json:"description"`
}

// FixAttempt records one applied suggestion and whether the re-run passed.
type FixAttempt struct {
	Step       Step          `json:"step"`
	Iteration  int           `json:"iteration"`
	Suggestion FixSuggestion `json:"suggestion"`
	Passed     bool          `json:"passed"`
}

// TestSummary is opportunistically extracted from test output. Nil on the
// report when no recognizable pattern was found.
type TestSummary struct {
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Coverage *float64 `json:"coverage,omitempty"`
}

// LintSummary is opportunistically extracted from lint output. Nil on the
// report when no recognizable pattern was found.
type LintSummary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Status is the terminal state of a pipeline run.
type Status string

// Pipeline terminal states.
const (
	StatusPassed    Status = "passed"
	StatusEscalated Status = "escalated"
)

// Report is the full record of one pipeline run. Steps that were not
// requested have no entry in the Steps map.
type Report struct {
	TaskID      string               `json:"task_id"`
	Steps       map[Step]*StepResult `json:"steps"`
	TestSummary *TestSummary         `json:"test_summary,omitempty"`
	LintSummary *LintSummary         `json:"lint_summary,omitempty"`
	FixAttempts []FixAttempt         `json:"fix_attempts,omitempty"`
	FinalStatus Status               `json:"final_status"`
	Duration    time.Duration        `json:"duration"`
	Timestamp   time.Time            `json:"timestamp"`
}

// FailedSteps returns the names of the run steps that did not pass, in the
// order they were requested.
func (r *Report) FailedSteps(order []Step) []Step {
	var failed []Step
	for _, step := range order {
		if res, ok := r.Steps[step]; ok && res != nil && !res.Passed {
			failed = append(failed, step)
		}
	}
	return failed
}

// StepNames converts steps to plain strings, for error context.
func StepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = string(s)
	}
	return names
}
