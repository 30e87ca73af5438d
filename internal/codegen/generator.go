// Package codegen defines the request/response boundary to the external
// code-generator collaborator. Foreman does not decide what code to write;
// it sends the work item's acceptance criteria and context to the generator
// and treats the result as an ordinary operation subject to retry and
// escalation.
package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// Action is the kind of change the generator proposes for one file.
type Action string

// File change actions.
const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// FileChange is one proposed change in a generator response.
type FileChange struct {
	Path         string `json:"path"`
	Action       Action `json:"action"`
	Content      string `json:"content,omitempty"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// Request is the structured input sent to the generator.
type Request struct {
	TaskID             string   `json:"task_id"`
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	RelatedFiles       []string `json:"related_files,omitempty"`
	StyleConventions   []string `json:"style_conventions,omitempty"`
}

// Response is the generator's structured output: either a list of file
// changes or a failure indicator.
type Response struct {
	Changes []FileChange `json:"changes,omitempty"`
	Failure string       `json:"failure,omitempty"`
}

// Generator is the collaborator boundary. Implementations never retry
// themselves; the retry executor owns that decision.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// RequestFromWorkItem builds the generator request for a work item.
func RequestFromWorkItem(item *models.WorkItem) *Request {
	return &Request{
		TaskID:             item.ID,
		Name:               item.Name,
		Description:        item.Description,
		AcceptanceCriteria: item.AcceptanceCriteria,
		RelatedFiles:       item.RelatedFiles,
		StyleConventions:   item.StyleConventions,
	}
}

// CLIGenerator invokes an external generator binary. The request is written
// as JSON on stdin; the response is read as JSON from stdout. Follows the
// create-once use-many client pattern and is safe for concurrent use.
type CLIGenerator struct {
	// BinPath is the generator binary. Defaults to "codegen" in PATH.
	BinPath string

	// Args are extra arguments passed before the request.
	Args []string

	// WorkDir is the working directory for the generator (empty = current).
	WorkDir string

	// Timeout bounds a single invocation. Zero means the caller's context
	// is the only bound.
	Timeout time.Duration
}

// NewCLIGenerator creates a CLIGenerator with default settings.
func NewCLIGenerator(binPath string) *CLIGenerator {
	if binPath == "" {
		binPath = "codegen"
	}
	return &CLIGenerator{BinPath: binPath}
}

// Generate invokes the generator binary and parses its response.
func (g *CLIGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.TaskID == "" {
		return nil, fmt.Errorf("code generator requires a request with a task id")
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generator request: %w", err)
	}

	binPath := g.BinPath
	if binPath == "" {
		binPath = "codegen"
	}

	cmd := exec.CommandContext(ctx, binPath, g.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	if g.WorkDir != "" {
		cmd.Dir = g.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("code generator invocation failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse generator response: %w", err)
	}

	if resp.Failure != "" {
		return nil, fmt.Errorf("code generator reported failure: %s", resp.Failure)
	}
	return &resp, nil
}
