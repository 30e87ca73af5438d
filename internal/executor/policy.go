package executor

import (
	"fmt"
	"strings"
	"time"
)

// BackoffMode selects the delay strategy between retry attempts.
type BackoffMode int

const (
	// BackoffFixed waits BaseDelay before every retry.
	BackoffFixed BackoffMode = iota
	// BackoffLinear waits BaseDelay multiplied by the attempt number.
	BackoffLinear
	// BackoffExponential doubles the delay after each attempt.
	BackoffExponential
)

// String returns the string representation of BackoffMode.
func (m BackoffMode) String() string {
	switch m {
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseBackoffMode converts a config string to a BackoffMode.
func ParseBackoffMode(s string) (BackoffMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return BackoffFixed, nil
	case "linear":
		return BackoffLinear, nil
	case "exponential", "":
		return BackoffExponential, nil
	default:
		return BackoffExponential, fmt.Errorf("unknown backoff mode %q", s)
	}
}

// RetryPolicy is the immutable retry configuration for one execution.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Must be at least 1.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Backoff selects how the delay grows across attempts.
	Backoff BackoffMode

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// Timeout bounds each individual attempt. Zero means unbounded.
	Timeout time.Duration
}

// DefaultRetryPolicy returns the policy used when the caller supplies none:
// three attempts with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Backoff:     BackoffExponential,
		MaxDelay:    30 * time.Second,
	}
}

// Validate checks the policy for nonsensical values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy requires max attempts >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry policy requires a non-negative base delay")
	}
	return nil
}

// Delay computes the backoff delay applied after the given attempt
// (1-based), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch p.Backoff {
	case BackoffFixed:
		d = p.BaseDelay
	case BackoffLinear:
		d = p.BaseDelay * time.Duration(attempt)
	case BackoffExponential:
		// Clamp the shift so extreme attempt counts cannot overflow.
		shift := attempt - 1
		if shift > 30 {
			shift = 30
		}
		d = p.BaseDelay << shift
	default:
		d = p.BaseDelay
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
