package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullWorkItem = `---
id: task-42
name: Add request logging
branch: feature/request-logging
retry:
  max_attempts: 5
  base_delay: 2s
  backoff: exponential
verification:
  steps: [test, lint]
  max_fix_iterations: 1
---

# Add request logging

Log every incoming request with method, path, and latency.

Requests carrying an auth token must have it redacted before logging.

## Acceptance Criteria

- Every handler logs method and path
- Latency is recorded in milliseconds
- Auth tokens never appear in logs

## Related Files

- internal/server/handler.go
- internal/server/middleware.go

## Style Conventions

- Table-driven tests
`

func TestParseFullWorkItem(t *testing.T) {
	p := NewWorkItemParser()
	item, err := p.Parse(strings.NewReader(fullWorkItem))
	require.NoError(t, err)

	assert.Equal(t, "task-42", item.ID)
	assert.Equal(t, "Add request logging", item.Name)
	assert.Equal(t, "feature/request-logging", item.Branch)

	require.NotNil(t, item.Retry)
	assert.Equal(t, 5, item.Retry.MaxAttempts)
	assert.Equal(t, "2s", item.Retry.BaseDelay)
	assert.Equal(t, "exponential", item.Retry.Backoff)

	require.NotNil(t, item.Verification)
	assert.Equal(t, []string{"test", "lint"}, item.Verification.Steps)
	require.NotNil(t, item.Verification.MaxFixIterations)
	assert.Equal(t, 1, *item.Verification.MaxFixIterations)

	assert.Contains(t, item.Description, "method, path, and latency")
	assert.Contains(t, item.Description, "redacted before logging")

	assert.Equal(t, []string{
		"Every handler logs method and path",
		"Latency is recorded in milliseconds",
		"Auth tokens never appear in logs",
	}, item.AcceptanceCriteria)
	assert.Equal(t, []string{
		"internal/server/handler.go",
		"internal/server/middleware.go",
	}, item.RelatedFiles)
	assert.Equal(t, []string{"Table-driven tests"}, item.StyleConventions)
}

func TestParseNameFromHeading(t *testing.T) {
	content := `---
id: task-1
---

# Fix the flaky watcher test

Stabilize the watcher startup race.
`
	p := NewWorkItemParser()
	item, err := p.Parse(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "task-1", item.ID)
	assert.Equal(t, "Fix the flaky watcher test", item.Name)
	assert.Equal(t, "Stabilize the watcher startup race.", item.Description)
}

func TestParseFrontmatterNameWins(t *testing.T) {
	content := `---
id: task-2
name: Frontmatter name
---

# Heading name
`
	p := NewWorkItemParser()
	item, err := p.Parse(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, "Frontmatter name", item.Name)
}

func TestParseMissingID(t *testing.T) {
	content := `---
name: No identifier
---

body text
`
	p := NewWorkItemParser()
	_, err := p.Parse(strings.NewReader(content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestParseMalformedFrontmatter(t *testing.T) {
	content := "---\nid: [unclosed\n---\n\n# Name\n"
	p := NewWorkItemParser()
	_, err := p.Parse(strings.NewReader(content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frontmatter")
}

func TestParseNoFrontmatter(t *testing.T) {
	// Without frontmatter there is no id, so validation fails.
	p := NewWorkItemParser()
	_, err := p.Parse(strings.NewReader("# Just a heading\n\nsome text\n"))
	require.Error(t, err)
}

func TestParseSectionHeadingsCaseInsensitive(t *testing.T) {
	content := `---
id: task-3
name: Case test
---

## ACCEPTANCE CRITERIA

- criterion one
`
	p := NewWorkItemParser()
	item, err := p.Parse(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []string{"criterion one"}, item.AcceptanceCriteria)
}

func TestParseUnknownSectionIgnored(t *testing.T) {
	content := `---
id: task-4
name: Unknown section
---

## Notes

- not collected anywhere
`
	p := NewWorkItemParser()
	item, err := p.Parse(strings.NewReader(content))
	require.NoError(t, err)
	assert.Empty(t, item.AcceptanceCriteria)
	assert.Empty(t, item.RelatedFiles)
	assert.Empty(t, item.StyleConventions)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "item.md")
	require.NoError(t, os.WriteFile(path, []byte(fullWorkItem), 0644))

	p := NewWorkItemParser()
	item, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "task-42", item.ID)
}

func TestParseFileMissing(t *testing.T) {
	p := NewWorkItemParser()
	_, err := p.ParseFile(filepath.Join(t.TempDir(), "nope.md"))
	require.Error(t, err)
}
