// Package escalate builds and persists human-actionable reports when
// automated retry and fixing cannot proceed. An escalation is terminal for
// its task: callers must not retry after receiving a report without new
// input.
package escalate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/foreman/internal/classify"
	"github.com/harrison/foreman/internal/filelock"
	"github.com/harrison/foreman/internal/models"
)

// Logger is the minimal logging surface the reporter needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Report is the persisted escalation record for one task.
type Report struct {
	TaskID          string             `json:"task_id"`
	WorkerID        string             `json:"worker_id"`
	WorkItem        *models.WorkItem   `json:"work_item,omitempty"`
	Error           classify.ErrorInfo `json:"error"`
	SuggestedAction string             `json:"suggested_action"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Callback is invoked after a report is assembled, before persistence
// completes. Fire-and-forget: a panicking or slow callback never blocks
// report persistence.
type Callback func(*Report)

// Reporter assembles and persists escalation reports under a directory,
// one JSON file (plus a markdown rendering for operators) per task.
type Reporter struct {
	dir      string
	workerID string
	callback Callback
	logger   Logger
	clock    func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithCallback registers a notification callback.
func WithCallback(cb Callback) Option {
	return func(r *Reporter) { r.callback = cb }
}

// WithLogger attaches a logger for escalation events.
func WithLogger(l Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithWorkerID overrides the generated worker identity.
func WithWorkerID(id string) Option {
	return func(r *Reporter) { r.workerID = id }
}

// NewReporter creates a Reporter writing under dir. The worker identity
// defaults to a fresh UUID per reporter, identifying this executing agent
// in persisted reports.
func NewReporter(dir string, opts ...Option) *Reporter {
	r := &Reporter{
		dir:      dir,
		workerID: uuid.NewString(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WorkerID returns the identity this reporter stamps on reports.
func (r *Reporter) WorkerID() string {
	return r.workerID
}

// Escalate assembles the report for a classified failure, invokes the
// registered callback, persists the report, and returns it.
func (r *Reporter) Escalate(taskID string, item *models.WorkItem, info classify.ErrorInfo) (*Report, error) {
	report := &Report{
		TaskID:          taskID,
		WorkerID:        r.workerID,
		WorkItem:        item,
		Error:           info,
		SuggestedAction: classify.SuggestedActionFor(info),
		Timestamp:       r.clock(),
	}

	r.notify(report)

	if err := r.persist(report); err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.Infof("escalation raised for task %s: %s (%s)", taskID, info.Code, info.Category)
	}
	return report, nil
}

// Load reads a persisted report for taskID. Returns nil when none exists.
func (r *Reporter) Load(taskID string) (*Report, error) {
	raw, err := os.ReadFile(r.jsonPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read escalation report for task %s: %w", taskID, err)
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to parse escalation report for task %s: %w", taskID, err)
	}
	return &report, nil
}

// List returns the task IDs with persisted escalation reports, sorted.
func (r *Reporter) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read escalation directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// notify runs the callback in its own goroutine with panic isolation so a
// broken notification hook cannot block or fail persistence.
func (r *Reporter) notify(report *Report) {
	if r.callback == nil {
		return
	}
	cb := r.callback
	go func() {
		defer func() {
			if rec := recover(); rec != nil && r.logger != nil {
				r.logger.Warnf("escalation callback panicked for task %s: %v", report.TaskID, rec)
			}
		}()
		cb(report)
	}()
}

func (r *Reporter) persist(report *Report) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal escalation report for task %s: %w", report.TaskID, err)
	}
	if err := filelock.LockAndWrite(r.jsonPath(report.TaskID), raw); err != nil {
		return fmt.Errorf("failed to write escalation report for task %s: %w", report.TaskID, err)
	}

	// The markdown rendering is best-effort operator convenience; the JSON
	// file is the record of truth.
	if err := filelock.AtomicWrite(r.markdownPath(report.TaskID), []byte(renderMarkdown(report))); err != nil {
		if r.logger != nil {
			r.logger.Warnf("failed to write markdown escalation report for task %s: %v", report.TaskID, err)
		}
	}
	return nil
}

func (r *Reporter) jsonPath(taskID string) string {
	return filepath.Join(r.dir, taskID+".json")
}

func (r *Reporter) markdownPath(taskID string) string {
	return filepath.Join(r.dir, taskID+".md")
}

// renderMarkdown produces the operator-facing rendering of a report.
func renderMarkdown(report *Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Escalation: %s\n\n", report.TaskID))
	if report.WorkItem != nil {
		sb.WriteString(fmt.Sprintf("**Work item:** %s (%s)\n\n", report.WorkItem.ID, report.WorkItem.Name))
	}
	sb.WriteString(fmt.Sprintf("**Worker:** %s\n", report.WorkerID))
	sb.WriteString(fmt.Sprintf("**Raised:** %s\n\n", report.Timestamp.Format(time.RFC3339)))
	sb.WriteString("## Error\n\n")
	sb.WriteString(fmt.Sprintf("- Category: %s\n", report.Error.Category))
	sb.WriteString(fmt.Sprintf("- Code: `%s`\n", report.Error.Code))
	sb.WriteString(fmt.Sprintf("- Retryable: %v\n", report.Error.Retryable))
	sb.WriteString(fmt.Sprintf("- Message: %s\n", report.Error.Message))

	if len(report.Error.Context) > 0 {
		sb.WriteString("\n## Context\n\n")
		keys := make([]string, 0, len(report.Error.Context))
		for k := range report.Error.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, report.Error.Context[k]))
		}
	}

	sb.WriteString("\n## Suggested action\n\n")
	sb.WriteString(report.SuggestedAction)
	sb.WriteString("\n")
	return sb.String()
}
