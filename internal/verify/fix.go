package verify

import (
	"fmt"
	"strings"
)

// fixableLintRules lists the lint rule codes foreman trusts the linter to
// correct mechanically with its fix flag. Everything else gets a manual
// suggestion.
var fixableLintRules = map[string]bool{
	"semi":               true,
	"quotes":             true,
	"indent":             true,
	"comma-dangle":       true,
	"eol-last":           true,
	"no-trailing-spaces": true,
	"gofmt":              true,
	"goimports":          true,
	"whitespace":         true,
}

// SuggestFixes derives remediation suggestions from parsed diagnostics.
// Lint diagnostics with a known-fixable rule code produce a single auto
// suggestion running fixCommand; every other diagnostic requires manual
// intervention and is reported as such.
func SuggestFixes(diags []Diagnostic, fixCommand string) []FixSuggestion {
	var suggestions []FixSuggestion
	var fixableRules []string
	var manualCount int

	for _, d := range diags {
		if d.Step == StepLint && fixableLintRules[d.Code] && fixCommand != "" {
			fixableRules = append(fixableRules, d.Code)
			continue
		}
		manualCount++
	}

	if len(fixableRules) > 0 {
		suggestions = append(suggestions, FixSuggestion{
			Kind:        FixAuto,
			Command:     fixCommand,
			Description: fmt.Sprintf("Run the linter's auto-fix for rule(s): %s", strings.Join(dedupe(fixableRules), ", ")),
		})
	}
	if manualCount > 0 {
		suggestions = append(suggestions, FixSuggestion{
			Kind:        FixManual,
			Description: fmt.Sprintf("%d diagnostic(s) require manual intervention", manualCount),
		})
	}
	return suggestions
}

// Analyze parses a step's output and derives fix suggestions in one pass.
func Analyze(step Step, output string, fixCommand string) []FixSuggestion {
	return SuggestFixes(ParseStepOutput(step, output), fixCommand)
}

// AutoSuggestion returns the first auto-applicable suggestion, or nil when
// every suggestion needs a human.
func AutoSuggestion(suggestions []FixSuggestion) *FixSuggestion {
	for i := range suggestions {
		if suggestions[i].Kind == FixAuto {
			return &suggestions[i]
		}
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
