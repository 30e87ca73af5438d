// Package models defines the shared data types passed between foreman
// components: work items, verification settings, and retry settings.
package models

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem is one unit of work processed by the executor. Items are usually
// loaded from markdown work-item files (see internal/parser) but can be
// constructed directly by embedding callers.
type WorkItem struct {
	// ID uniquely identifies the work item. Doubles as the taskId for
	// checkpoint and escalation files, so it must be unique per in-flight
	// execution.
	ID string `yaml:"id" json:"id"`

	// Name is a short human-readable title.
	Name string `yaml:"name" json:"name"`

	// Description is the free-form body text of the work item.
	Description string `yaml:"-" json:"description,omitempty"`

	// Branch optionally overrides the derived git branch name.
	Branch string `yaml:"branch" json:"branch,omitempty"`

	// AcceptanceCriteria lists the conditions the generated change must meet.
	// Passed verbatim to the code-generator collaborator.
	AcceptanceCriteria []string `yaml:"-" json:"acceptance_criteria,omitempty"`

	// RelatedFiles lists repository paths that give the generator context.
	RelatedFiles []string `yaml:"-" json:"related_files,omitempty"`

	// StyleConventions lists detected project conventions (naming, layout,
	// formatting) the generator should follow.
	StyleConventions []string `yaml:"-" json:"style_conventions,omitempty"`

	// Retry optionally overrides the configured retry policy for this item.
	Retry *RetrySettings `yaml:"retry" json:"retry,omitempty"`

	// Verification optionally overrides the configured verification settings.
	Verification *VerificationSettings `yaml:"verification" json:"verification,omitempty"`
}

// Validate checks that the work item has the fields execution requires.
func (w *WorkItem) Validate() error {
	if w == nil {
		return fmt.Errorf("work item is nil")
	}
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("work item has no id")
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("work item %s has no name", w.ID)
	}
	return nil
}

// RetrySettings are the yaml-facing retry policy overrides carried on a work
// item. Zero values mean "use the configured default".
type RetrySettings struct {
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts,omitempty"`
	BaseDelay   string `yaml:"base_delay" json:"base_delay,omitempty"`
	Backoff     string `yaml:"backoff" json:"backoff,omitempty"`
	MaxDelay    string `yaml:"max_delay" json:"max_delay,omitempty"`
	Timeout     string `yaml:"timeout" json:"timeout,omitempty"`
}

// VerificationSettings are the yaml-facing verification overrides carried on
// a work item.
type VerificationSettings struct {
	// Steps restricts which verification steps run, in order.
	// Empty means "use the configured default order".
	Steps []string `yaml:"steps" json:"steps,omitempty"`

	// Commands overrides the shell command for individual steps.
	Commands map[string]string `yaml:"commands" json:"commands,omitempty"`

	// MaxFixIterations bounds the auto-fix loop. Nil means use default.
	MaxFixIterations *int `yaml:"max_fix_iterations" json:"max_fix_iterations,omitempty"`

	// ContinueOnFailure keeps running later steps after a failure so all
	// failures are aggregated into a single escalation.
	ContinueOnFailure *bool `yaml:"continue_on_failure" json:"continue_on_failure,omitempty"`
}

// ParseDuration parses a duration override string, returning fallback when
// the string is empty. Malformed strings return an error rather than being
// silently ignored.
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
