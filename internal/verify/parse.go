package verify

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic line formats per step type. Parsing is tolerant of partial
// matches: lines that match none of the patterns are ignored, not errors.
var (
	// a.ts(10,5): error TS2345: Argument of type ...
	typecheckLineRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning) ([A-Za-z]+\d+): (.+)$`)

	// a.ts:10:5: Missing semicolon (semi)
	lintLineRe = regexp.MustCompile(`^(.+?):(\d+):(\d+): (.+?) \(([\w@/-]+)\)$`)

	// error: linker command failed / ERROR: cannot find module
	buildLineRe = regexp.MustCompile(`^(?:error|ERROR):\s*(.+)$`)

	// assertion wording inside test output
	testAssertionRe = regexp.MustCompile(`(?i)(assert(ion)?\s+(failed|error))|(expected\b.+\b(got|received|but))`)
)

// ParseStepOutput parses a step's raw combined output into structured
// diagnostics. One output yields zero or more diagnostics.
func ParseStepOutput(step Step, output string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch step {
		case StepTypecheck:
			if m := typecheckLineRe.FindStringSubmatch(line); m != nil {
				diags = append(diags, Diagnostic{
					Step:     step,
					File:     m[1],
					Line:     atoi(m[2]),
					Column:   atoi(m[3]),
					Severity: Severity(m[4]),
					Code:     m[5],
					Message:  m[6],
				})
			}
		case StepLint:
			if m := lintLineRe.FindStringSubmatch(line); m != nil {
				diags = append(diags, Diagnostic{
					Step:     step,
					File:     m[1],
					Line:     atoi(m[2]),
					Column:   atoi(m[3]),
					Severity: SeverityError,
					Code:     m[5],
					Message:  m[4],
				})
			}
		case StepTest:
			// go test prefixes per-test failures with "--- FAIL:"; the bare
			// "FAIL" prefix covers the package summary line.
			failLine := strings.TrimPrefix(strings.TrimSpace(line), "--- ")
			if strings.HasPrefix(failLine, "FAIL") || strings.Contains(line, "Error:") || testAssertionRe.MatchString(line) {
				diags = append(diags, Diagnostic{
					Step:     step,
					Severity: SeverityError,
					Message:  strings.TrimSpace(line),
				})
			}
		case StepBuild:
			if m := buildLineRe.FindStringSubmatch(line); m != nil {
				diags = append(diags, Diagnostic{
					Step:     step,
					Severity: SeverityError,
					Message:  m[1],
				})
			}
		}
	}
	return diags
}

// Test summary patterns cover the common reporter phrasings:
// "12 passed, 1 failed, 2 skipped" / "Tests: 3 failing" / "coverage: 81.5%".
var (
	testPassedRe   = regexp.MustCompile(`(\d+)\s+pass(?:ed|ing)?\b`)
	testFailedRe   = regexp.MustCompile(`(\d+)\s+fail(?:ed|ing)?\b`)
	testSkippedRe  = regexp.MustCompile(`(\d+)\s+(?:skipped|pending)\b`)
	testCoverageRe = regexp.MustCompile(`(?i)coverage[:\s]+(\d+(?:\.\d+)?)%`)
)

// ParseTestSummary extracts pass/fail/skip counts and coverage from test
// output. Returns nil when nothing recognizable is present; a missing
// summary stays undefined rather than zeroed.
func ParseTestSummary(output string) *TestSummary {
	var summary TestSummary
	matched := false

	if m := testPassedRe.FindStringSubmatch(output); m != nil {
		summary.Passed = atoi(m[1])
		matched = true
	}
	if m := testFailedRe.FindStringSubmatch(output); m != nil {
		summary.Failed = atoi(m[1])
		matched = true
	}
	if m := testSkippedRe.FindStringSubmatch(output); m != nil {
		summary.Skipped = atoi(m[1])
		matched = true
	}
	if m := testCoverageRe.FindStringSubmatch(output); m != nil {
		if cov, err := strconv.ParseFloat(m[1], 64); err == nil {
			summary.Coverage = &cov
			matched = true
		}
	}

	if !matched {
		return nil
	}
	return &summary
}

// Lint summary patterns cover "✖ 3 problems (2 errors, 1 warning)" style
// totals as well as bare "2 errors" / "1 warning" lines.
var (
	lintErrorsRe   = regexp.MustCompile(`(\d+)\s+errors?\b`)
	lintWarningsRe = regexp.MustCompile(`(\d+)\s+warnings?\b`)
)

// ParseLintSummary extracts error/warning counts from lint output. Returns
// nil when nothing recognizable is present.
func ParseLintSummary(output string) *LintSummary {
	var summary LintSummary
	matched := false

	if m := lintErrorsRe.FindStringSubmatch(output); m != nil {
		summary.Errors = atoi(m[1])
		matched = true
	}
	if m := lintWarningsRe.FindStringSubmatch(output); m != nil {
		summary.Warnings = atoi(m[1])
		matched = true
	}

	if !matched {
		return nil
	}
	return &summary
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
