package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestFixesFixableLint(t *testing.T) {
	diags := []Diagnostic{
		{Step: StepLint, Code: "semi", Message: "Missing semicolon"},
		{Step: StepLint, Code: "semi", Message: "Missing semicolon"},
		{Step: StepLint, Code: "quotes", Message: "Prefer single quotes"},
	}

	suggestions := SuggestFixes(diags, "eslint . --fix")
	require.Len(t, suggestions, 1)
	assert.Equal(t, FixAuto, suggestions[0].Kind)
	assert.Equal(t, "eslint . --fix", suggestions[0].Command)
	// Repeated rules are collapsed in the description.
	assert.Contains(t, suggestions[0].Description, "semi, quotes")
}

func TestSuggestFixesMixed(t *testing.T) {
	diags := []Diagnostic{
		{Step: StepLint, Code: "semi"},
		{Step: StepLint, Code: "no-unused-vars"},
		{Step: StepTest, Message: "FAIL: TestThing"},
	}

	suggestions := SuggestFixes(diags, "eslint . --fix")
	require.Len(t, suggestions, 2)
	assert.Equal(t, FixAuto, suggestions[0].Kind)
	assert.Equal(t, FixManual, suggestions[1].Kind)
	assert.Contains(t, suggestions[1].Description, "2 diagnostic(s)")
}

func TestSuggestFixesNoFixCommand(t *testing.T) {
	diags := []Diagnostic{{Step: StepLint, Code: "semi"}}
	suggestions := SuggestFixes(diags, "")
	require.Len(t, suggestions, 1)
	assert.Equal(t, FixManual, suggestions[0].Kind)
}

func TestSuggestFixesTestFailuresNeverAuto(t *testing.T) {
	diags := []Diagnostic{{Step: StepTest, Message: "assertion failed"}}
	suggestions := SuggestFixes(diags, "eslint . --fix")
	require.Len(t, suggestions, 1)
	assert.Equal(t, FixManual, suggestions[0].Kind)
	assert.Nil(t, AutoSuggestion(suggestions))
}

func TestAnalyze(t *testing.T) {
	output := "src/main.go:10:2: Missing semicolon (semi)\n"
	suggestions := Analyze(StepLint, output, "eslint . --fix")
	require.Len(t, suggestions, 1)
	assert.Equal(t, FixAuto, suggestions[0].Kind)
}

func TestAutoSuggestion(t *testing.T) {
	assert.Nil(t, AutoSuggestion(nil))

	s := AutoSuggestion([]FixSuggestion{
		{Kind: FixManual},
		{Kind: FixAuto, Command: "fix it"},
	})
	require.NotNil(t, s)
	assert.Equal(t, "fix it", s.Command)
}
