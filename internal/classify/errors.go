// Package classify provides the error taxonomy used to decide whether a
// failed attempt is retried, fixed, or escalated to a human operator.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorCategory buckets a failure by how execution should respond to it.
type ErrorCategory int

const (
	// CategoryTransient covers infrastructure noise (network resets,
	// timeouts). Safe to retry unchanged.
	CategoryTransient ErrorCategory = iota

	// CategoryRecoverable covers failures where the operation ran but
	// produced a verifiable bad result (tests, lint, build). A retry may
	// succeed after a fix.
	CategoryRecoverable

	// CategoryFatal covers failures that cannot succeed without external
	// intervention. Never retried.
	CategoryFatal
)

// String returns the string representation of ErrorCategory.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryRecoverable:
		return "recoverable"
	case CategoryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the category as its string form so persisted reports
// stay readable.
func (c ErrorCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses the string form written by MarshalJSON.
func (c *ErrorCategory) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "transient":
		*c = CategoryTransient
	case "recoverable":
		*c = CategoryRecoverable
	case "fatal":
		*c = CategoryFatal
	default:
		return fmt.Errorf("unknown error category %q", s)
	}
	return nil
}

// BlockedError signals that a work item is explicitly blocked and cannot be
// implemented until its blockers are resolved. Always fatal.
type BlockedError struct {
	IssueID  string
	Blockers []string
}

// Error implements the error interface for BlockedError.
func (e *BlockedError) Error() string {
	if len(e.Blockers) == 0 {
		return fmt.Sprintf("implementation blocked for issue %s", e.IssueID)
	}
	return fmt.Sprintf("implementation blocked for issue %s (blocked by: %s)",
		e.IssueID, strings.Join(e.Blockers, ", "))
}

// VerificationError signals that a verification step ran and failed.
// Classified recoverable: a fix followed by a retry may succeed.
type VerificationError struct {
	// Steps names the verification steps that failed, in execution order.
	Steps []string

	// Message summarizes the failure for humans.
	Message string
}

// Error implements the error interface for VerificationError.
func (e *VerificationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("verification failed: %s", strings.Join(e.Steps, ", "))
}

// TimeoutError signals that an operation exceeded its per-attempt timeout.
// Classified transient so it is retried under the normal backoff rule.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Timeout)
}
