package classify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// maxMessageLen caps the human message carried on an ErrorInfo so escalation
// reports stay readable even when a command dumps its whole output into the
// error string.
const maxMessageLen = 500

// ErrorInfo is the structured descriptor attached to outcomes and escalation
// reports. Built once per failure; not mutated afterward.
type ErrorInfo struct {
	Category  ErrorCategory     `json:"category"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Context   map[string]string `json:"context,omitempty"`
}

// Categorize maps any failure into an ErrorCategory. Inspection order
// matters: known fatal kinds first, then recoverable, then transient.
// Unknown errors default to fatal so they are never blindly retried.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return CategoryFatal
	}

	// Known fatal kinds.
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return CategoryFatal
	}
	if errors.Is(err, os.ErrPermission) {
		return CategoryFatal
	}
	if errors.Is(err, os.ErrNotExist) {
		return CategoryFatal
	}

	// Known recoverable kinds.
	var verification *VerificationError
	if errors.As(err, &verification) {
		return CategoryRecoverable
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, "test failed", "tests failed", "lint failed", "build failed", "typecheck failed", "type check failed") {
		return CategoryRecoverable
	}

	// Transient infrastructure noise.
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return CategoryTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	if containsAny(msg, "connection reset", "connection refused", "timeout", "timed out", "temporarily unavailable", "econnreset", "econnrefused", "etimedout") {
		return CategoryTransient
	}

	return CategoryFatal
}

// IsRetryable reports whether a retry could possibly succeed: true for every
// category except fatal.
func IsRetryable(err error) bool {
	return Categorize(err) != CategoryFatal
}

// RequiresEscalation reports whether the failure needs a human operator.
func RequiresEscalation(err error) bool {
	return Categorize(err) == CategoryFatal
}

// SuggestedAction returns the operator guidance string for a classified
// failure.
func SuggestedAction(err error, category ErrorCategory) string {
	info := ErrorInfo{Category: category}
	var verification *VerificationError
	if errors.As(err, &verification) && len(verification.Steps) > 0 {
		info.Context = map[string]string{"failed_steps": strings.Join(verification.Steps, ",")}
	}
	return SuggestedActionFor(info)
}

// SuggestedActionFor returns the operator guidance string for an already
// built descriptor. Single source of the phrasing used in escalation
// reports and log output.
func SuggestedActionFor(info ErrorInfo) string {
	switch info.Category {
	case CategoryTransient:
		return "Retry with backoff"
	case CategoryRecoverable:
		if steps := info.Context["failed_steps"]; steps != "" {
			return fmt.Sprintf("Fix the failing %s step(s) and retry", strings.ReplaceAll(steps, ",", ", "))
		}
		return "Fix the reported failure and retry"
	default:
		return "Escalate to a human operator"
	}
}

// BuildErrorInfo constructs the structured descriptor for a failure. Extra
// context from the caller is merged with any context the error kind itself
// carries (blocked-issue id, blockers, failing steps).
func BuildErrorInfo(err error, extra map[string]string) ErrorInfo {
	category := Categorize(err)

	info := ErrorInfo{
		Category:  category,
		Code:      errorCode(err, category),
		Message:   truncate(errMessage(err), maxMessageLen),
		Retryable: category != CategoryFatal,
	}

	ctx := map[string]string{}
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		ctx["issue_id"] = blocked.IssueID
		if len(blocked.Blockers) > 0 {
			ctx["blockers"] = strings.Join(blocked.Blockers, ",")
		}
	}
	var verification *VerificationError
	if errors.As(err, &verification) && len(verification.Steps) > 0 {
		ctx["failed_steps"] = strings.Join(verification.Steps, ",")
	}
	for k, v := range extra {
		ctx[k] = v
	}
	if len(ctx) > 0 {
		info.Context = ctx
	}

	return info
}

// errorCode derives a short stable code from the error kind.
func errorCode(err error, category ErrorCategory) string {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return "implementation_blocked"
	}
	if errors.Is(err, os.ErrPermission) {
		return "permission_denied"
	}
	if errors.Is(err, os.ErrNotExist) {
		return "file_not_found"
	}
	var verification *VerificationError
	if errors.As(err, &verification) {
		return "verification_failed"
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return "operation_timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "operation_timeout"
	}

	switch category {
	case CategoryTransient:
		return "transient_failure"
	case CategoryRecoverable:
		return "recoverable_failure"
	default:
		return "unknown_error"
	}
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// truncate caps s at n bytes, cutting on a rune boundary so a multi-byte
// character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
