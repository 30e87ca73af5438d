package codegen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/models"
)

// shGenerator builds a CLIGenerator backed by an inline shell script, so
// tests exercise the real stdin/stdout plumbing without an external binary.
func shGenerator(script string) *CLIGenerator {
	return &CLIGenerator{BinPath: "sh", Args: []string{"-c", script}}
}

func TestRequestFromWorkItem(t *testing.T) {
	item := &models.WorkItem{
		ID:                 "task-1",
		Name:               "Add logging",
		Description:        "Log all the things",
		AcceptanceCriteria: []string{"logs exist"},
		RelatedFiles:       []string{"main.go"},
		StyleConventions:   []string{"tabs"},
	}

	req := RequestFromWorkItem(item)
	assert.Equal(t, "task-1", req.TaskID)
	assert.Equal(t, "Add logging", req.Name)
	assert.Equal(t, "Log all the things", req.Description)
	assert.Equal(t, []string{"logs exist"}, req.AcceptanceCriteria)
	assert.Equal(t, []string{"main.go"}, req.RelatedFiles)
	assert.Equal(t, []string{"tabs"}, req.StyleConventions)
}

func TestGenerateParsesResponse(t *testing.T) {
	g := shGenerator(`cat >/dev/null; printf '{"changes":[{"path":"main.go","action":"modify","lines_added":4,"lines_removed":1}]}'`)

	resp, err := g.Generate(context.Background(), &Request{TaskID: "t1", Name: "n"})
	require.NoError(t, err)
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, "main.go", resp.Changes[0].Path)
	assert.Equal(t, ActionModify, resp.Changes[0].Action)
	assert.Equal(t, 4, resp.Changes[0].LinesAdded)
}

func TestGenerateEchoesRequestOnStdin(t *testing.T) {
	// The script fails unless the request JSON arrived on stdin.
	g := shGenerator(`grep -q '"task_id":"t2"' && printf '{"changes":[]}' || exit 1`)

	_, err := g.Generate(context.Background(), &Request{TaskID: "t2", Name: "n"})
	require.NoError(t, err)
}

func TestGenerateReportedFailure(t *testing.T) {
	g := shGenerator(`cat >/dev/null; printf '{"failure":"cannot satisfy criteria"}'`)

	_, err := g.Generate(context.Background(), &Request{TaskID: "t3", Name: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot satisfy criteria")
}

func TestGenerateNonZeroExitIncludesStderr(t *testing.T) {
	g := shGenerator(`cat >/dev/null; echo "generator blew up" >&2; exit 3`)

	_, err := g.Generate(context.Background(), &Request{TaskID: "t4", Name: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator blew up")
}

func TestGenerateMalformedOutput(t *testing.T) {
	g := shGenerator(`cat >/dev/null; printf 'this is not json'`)

	_, err := g.Generate(context.Background(), &Request{TaskID: "t5", Name: "n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse generator response")
}

func TestGenerateTimeout(t *testing.T) {
	g := shGenerator(`sleep 5`)
	g.Timeout = 50 * time.Millisecond

	_, err := g.Generate(context.Background(), &Request{TaskID: "t6", Name: "n"})
	require.Error(t, err)
}

func TestGenerateRequestValidation(t *testing.T) {
	g := NewCLIGenerator("")
	assert.Equal(t, "codegen", g.BinPath)

	_, err := g.Generate(context.Background(), nil)
	assert.Error(t, err)

	_, err = g.Generate(context.Background(), &Request{})
	assert.Error(t, err)
}
