// Package executor runs operations under a retry policy, persisting a
// checkpoint before every attempt and classifying failures to decide
// between retry, stop, and escalation. It is the single point in foreman
// that makes the retry-vs-stop decision; components below it only report
// success or failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/checkpoint"
	"github.com/harrison/foreman/internal/classify"
	"github.com/harrison/foreman/internal/escalate"
	"github.com/harrison/foreman/internal/history"
	"github.com/harrison/foreman/internal/models"
)

// Logger is the minimal logging surface the executor needs. Implemented by
// the logger package; declared here so the executor does not depend on any
// specific transport.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Operation is the unit of work executed under retry. The context passed in
// is cancelled when the per-attempt timeout elapses; operations that spawn
// processes must honor it.
type Operation func(ctx context.Context) (interface{}, error)

// TaskContext identifies the task an operation runs on behalf of.
type TaskContext struct {
	TaskID   string
	Step     string
	WorkItem *models.WorkItem
}

// AttemptRecord captures one failed attempt and the delay applied before
// the next one. Appended during execution, read-only afterward.
type AttemptRecord struct {
	Attempt   int           `json:"attempt"`
	Error     string        `json:"error"`
	Delay     time.Duration `json:"delay"`
	Timestamp time.Time     `json:"timestamp"`
}

// Outcome is the result of one Execute invocation. Never mutated after it
// is returned.
type Outcome struct {
	Success    bool                `json:"success"`
	Result     interface{}         `json:"result,omitempty"`
	Error      *classify.ErrorInfo `json:"error,omitempty"`
	Attempts   int                 `json:"attempts"`
	AttemptLog []AttemptRecord     `json:"attempt_log,omitempty"`
}

// MaxRetriesError is returned when every allowed attempt failed with a
// retryable error. It carries the last underlying error.
type MaxRetriesError struct {
	TaskID   string
	Attempts int
	LastErr  error
}

// Error implements the error interface for MaxRetriesError.
func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("task %s: max retries exceeded after %d attempts: %v", e.TaskID, e.Attempts, e.LastErr)
}

// Unwrap returns the last underlying error.
func (e *MaxRetriesError) Unwrap() error {
	return e.LastErr
}

// Escalator hands a terminal failure to the escalation subsystem.
// Implemented by escalate.Reporter.
type Escalator interface {
	Escalate(taskID string, item *models.WorkItem, info classify.ErrorInfo) (*escalate.Report, error)
}

// HistoryRecorder records individual attempts for post-mortem tooling.
// Implemented by history.Store. Recording failures are logged, never
// allowed to fail the execution itself.
type HistoryRecorder interface {
	RecordAttempt(ctx context.Context, rec *history.AttemptRecord) error
}

// RetryExecutor runs operations under a RetryPolicy.
type RetryExecutor struct {
	policy      RetryPolicy
	checkpoints *checkpoint.Store
	escalator   Escalator
	recorder    HistoryRecorder
	logger      Logger
	sleep       func(ctx context.Context, d time.Duration) error
	clock       func() time.Time
}

// ExecutorOption configures a RetryExecutor.
type ExecutorOption func(*RetryExecutor)

// WithEscalator attaches the escalation reporter invoked on fatal failures
// and retry exhaustion.
func WithEscalator(e Escalator) ExecutorOption {
	return func(r *RetryExecutor) { r.escalator = e }
}

// WithHistoryRecorder attaches an execution-history recorder.
func WithHistoryRecorder(h HistoryRecorder) ExecutorOption {
	return func(r *RetryExecutor) { r.recorder = h }
}

// WithLogger attaches a logger for attempt lifecycle events.
func WithLogger(l Logger) ExecutorOption {
	return func(r *RetryExecutor) { r.logger = l }
}

// NewRetryExecutor constructs a RetryExecutor. The checkpoint store is
// required; escalator, recorder, and logger are optional.
func NewRetryExecutor(policy RetryPolicy, checkpoints *checkpoint.Store, opts ...ExecutorOption) (*RetryExecutor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("retry executor requires a checkpoint store")
	}

	r := &RetryExecutor{
		policy:      policy,
		checkpoints: checkpoints,
		sleep:       sleepContext,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Execute runs op under the configured policy.
//
// On success it returns an Outcome with Success=true and clears the task's
// checkpoint. A fatal classification stops immediately and returns a failed
// Outcome counting exactly the attempts made. Exhausting all attempts on
// retryable errors returns a *MaxRetriesError. In both terminal failure
// cases the escalator (if any) is invoked before returning.
func (r *RetryExecutor) Execute(ctx context.Context, op Operation, tc TaskContext) (*Outcome, error) {
	if op == nil {
		return nil, fmt.Errorf("retry executor requires an operation")
	}
	if tc.TaskID == "" {
		return nil, fmt.Errorf("retry executor requires a task id")
	}

	var attemptLog []AttemptRecord

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := r.checkpoints.Create(tc.TaskID, tc.Step, attempt, nil); err != nil {
			// Losing checkpoint data would corrupt resumability, so a write
			// failure is surfaced instead of swallowed.
			return nil, fmt.Errorf("checkpoint write failed for task %s: %w", tc.TaskID, err)
		}
		r.debugf("task %s: attempt %d/%d started (step=%s)", tc.TaskID, attempt, r.policy.MaxAttempts, tc.Step)

		result, err := r.runAttempt(ctx, op, tc)
		if err == nil {
			if clearErr := r.checkpoints.Clear(tc.TaskID); clearErr != nil {
				r.warnf("task %s: failed to clear checkpoint: %v", tc.TaskID, clearErr)
			}
			r.record(ctx, tc, attempt, true, nil, 0)
			r.infof("task %s: succeeded on attempt %d", tc.TaskID, attempt)
			return &Outcome{
				Success:    true,
				Result:     result,
				Attempts:   attempt,
				AttemptLog: attemptLog,
			}, nil
		}

		// Caller cancellation is not a failure to classify.
		if ctx.Err() != nil && !isAttemptTimeout(err) {
			return nil, ctx.Err()
		}

		category := classify.Categorize(err)
		r.warnf("task %s: attempt %d failed (%s): %v", tc.TaskID, attempt, category, err)

		if category == classify.CategoryFatal {
			r.record(ctx, tc, attempt, false, err, 0)
			info := classify.BuildErrorInfo(err, map[string]string{"step": tc.Step})
			r.escalateTerminal(tc, info)
			return &Outcome{
				Success:    false,
				Error:      &info,
				Attempts:   attempt,
				AttemptLog: attemptLog,
			}, nil
		}

		if attempt == r.policy.MaxAttempts {
			r.record(ctx, tc, attempt, false, err, 0)
			info := classify.BuildErrorInfo(err, map[string]string{"step": tc.Step})
			r.escalateTerminal(tc, info)
			return nil, &MaxRetriesError{TaskID: tc.TaskID, Attempts: attempt, LastErr: err}
		}

		delay := r.policy.Delay(attempt)
		r.record(ctx, tc, attempt, false, err, delay)
		attemptLog = append(attemptLog, AttemptRecord{
			Attempt:   attempt,
			Error:     err.Error(),
			Delay:     delay,
			Timestamp: r.clock(),
		})

		r.debugf("task %s: backing off %v before attempt %d", tc.TaskID, delay, attempt+1)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	// Unreachable: the loop always returns.
	return nil, fmt.Errorf("task %s: retry loop exited unexpectedly", tc.TaskID)
}

// runAttempt executes one attempt, racing it against the per-attempt
// timeout. On timeout the operation's context is cancelled (killing any
// child process started through a CommandRunner) and a transient
// TimeoutError is returned instead of letting the operation run unbounded.
func (r *RetryExecutor) runAttempt(ctx context.Context, op Operation, tc TaskContext) (interface{}, error) {
	if r.policy.Timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()

	type attemptResult struct {
		value interface{}
		err   error
	}
	done := make(chan attemptResult, 1)
	go func() {
		value, err := op(attemptCtx)
		done <- attemptResult{value, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &classify.TimeoutError{Op: operationName(tc), Timeout: r.policy.Timeout}
		}
		return res.value, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &classify.TimeoutError{Op: operationName(tc), Timeout: r.policy.Timeout}
	}
}

// escalateTerminal hands a terminal failure to the escalation reporter.
// Reporter failures are logged; the original failure still surfaces.
func (r *RetryExecutor) escalateTerminal(tc TaskContext, info classify.ErrorInfo) {
	if r.escalator == nil {
		return
	}
	if _, err := r.escalator.Escalate(tc.TaskID, tc.WorkItem, info); err != nil {
		r.errorf("task %s: failed to persist escalation report: %v", tc.TaskID, err)
	}
}

// record writes one attempt to the history store, if one is attached.
func (r *RetryExecutor) record(ctx context.Context, tc TaskContext, attempt int, success bool, attemptErr error, delay time.Duration) {
	if r.recorder == nil {
		return
	}
	rec := &history.AttemptRecord{
		TaskID:    tc.TaskID,
		Step:      tc.Step,
		Attempt:   attempt,
		Success:   success,
		Delay:     delay,
		Timestamp: r.clock(),
	}
	if attemptErr != nil {
		info := classify.BuildErrorInfo(attemptErr, nil)
		rec.ErrorCode = info.Code
		rec.ErrorCategory = info.Category.String()
		rec.ErrorMessage = info.Message
	}
	if err := r.recorder.RecordAttempt(ctx, rec); err != nil {
		r.warnf("task %s: failed to record attempt history: %v", tc.TaskID, err)
	}
}

func operationName(tc TaskContext) string {
	if tc.Step != "" {
		return tc.Step
	}
	return "operation"
}

// isAttemptTimeout distinguishes our per-attempt timeout from caller
// cancellation when both contexts are done.
func isAttemptTimeout(err error) bool {
	var timeout *classify.TimeoutError
	return errors.As(err, &timeout)
}

// sleepContext sleeps for d without blocking cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *RetryExecutor) debugf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debugf(format, args...)
	}
}

func (r *RetryExecutor) infof(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Infof(format, args...)
	}
}

func (r *RetryExecutor) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnf(format, args...)
	}
}

func (r *RetryExecutor) errorf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Errorf(format, args...)
	}
}
