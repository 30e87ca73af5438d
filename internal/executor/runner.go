package executor

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// CommandRunner abstracts shell command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, command string) (output string, err error)
}

// ShellCommandRunner executes commands via the system shell. The context
// passed to Run bounds the command: on cancellation or deadline the child
// process is killed rather than left running.
type ShellCommandRunner struct {
	WorkDir string // Working directory for commands (empty = current dir)
}

// NewShellCommandRunner creates a CommandRunner that executes real shell
// commands with workDir as the working directory.
func NewShellCommandRunner(workDir string) *ShellCommandRunner {
	return &ShellCommandRunner{WorkDir: workDir}
}

// Run executes a command via sh -c and returns combined stdout/stderr.
func (r *ShellCommandRunner) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	// Give the shell a short grace period after ctx cancellation before the
	// process group is killed, so partial output still gets flushed.
	cmd.WaitDelay = 2 * time.Second

	output, err := cmd.CombinedOutput()
	return string(output), err
}

// ExitCode extracts the process exit code from a CommandRunner error.
// Returns 0 for nil errors and -1 when the command never ran or was killed
// before exiting.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
