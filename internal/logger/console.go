// Package logger provides the logging implementations foreman injects into
// its core components. The core emits structured events through small
// per-package interfaces; these implementations decide the transport
// (console, file) and presentation.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering.
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs execution progress to a writer with [HH:MM:SS]
// timestamps and thread safety. Color output is enabled automatically when
// writing to a TTY.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger writing to the provided writer.
// If writer is nil, messages are silently discarded. Valid levels: trace,
// debug, info, warn, error (case-insensitive); empty or invalid defaults
// to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether the writer is a TTY that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel lowercases and validates a level string, defaulting to
// "info".
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	default:
		return "info"
	}
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// Tracef logs a formatted trace-level message.
func (cl *ConsoleLogger) Tracef(format string, args ...interface{}) {
	cl.logf("TRACE", format, args...)
}

// Debugf logs a formatted debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logf("DEBUG", format, args...)
}

// Infof logs a formatted info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logf("INFO", format, args...)
}

// Warnf logs a formatted warn-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logf("WARN", format, args...)
}

// Errorf logs a formatted error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.logf("ERROR", format, args...)
}

func (cl *ConsoleLogger) logf(level string, format string, args ...interface{}) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	message := fmt.Sprintf(format, args...)

	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}
	cl.writer.Write([]byte(formatted))
}

// colorLevel colors a level tag for terminal output.
func colorLevel(level string) string {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// StepCompleted logs a verification step result with pass/fail coloring.
// Format: "[HH:MM:SS] step lint: PASS (1.2s)"
func (cl *ConsoleLogger) StepCompleted(step string, passed bool, duration time.Duration) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	status := "PASS"
	if !passed {
		status = "FAIL"
	}
	if cl.colorOutput {
		if passed {
			status = color.New(color.FgGreen).Sprint(status)
		} else {
			status = color.New(color.FgRed).Sprint(status)
		}
	}
	fmt.Fprintf(cl.writer, "[%s] step %s: %s (%s)\n", timestamp(), step, status, formatDuration(duration))
}

// EscalationRaised logs a terminal escalation with the suggested operator
// action. Always printed regardless of level: escalations must be visible.
func (cl *ConsoleLogger) EscalationRaised(taskID, suggestedAction string) {
	if cl.writer == nil {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	tag := "ESCALATION"
	if cl.colorOutput {
		tag = color.New(color.FgRed, color.Bold).Sprint(tag)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] task %s: %s\n", timestamp(), tag, taskID, suggestedAction)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration renders a duration compactly (1.2s, 3m05s).
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}
