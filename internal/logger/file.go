package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileLogger logs execution events to timestamped per-run files under a log
// directory and maintains a latest.log symlink pointing at the most recent
// run. Thread-safe; supports the same level filtering as ConsoleLogger.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing under logDir with the given
// level. The directory is created if it does not exist.
func NewFileLogger(logDir, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		logLevel: normalizeLogLevel(logLevel),
	}

	if err := fl.updateLatestSymlink(); err != nil {
		file.Close()
		return nil, err
	}
	return fl, nil
}

// updateLatestSymlink points latest.log at the current run file.
func (fl *FileLogger) updateLatestSymlink() error {
	symlinkPath := filepath.Join(fl.logDir, "latest.log")

	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			return fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(fl.runFile), symlinkPath); err != nil {
		// Symlinks are unavailable on some filesystems; the run log itself
		// still works, so don't fail logger construction over it.
		return nil
	}
	return nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog != nil {
		err := fl.runLog.Close()
		fl.runLog = nil
		return err
	}
	return nil
}

// Tracef logs a formatted trace-level message.
func (fl *FileLogger) Tracef(format string, args ...interface{}) {
	fl.logf("TRACE", format, args...)
}

// Debugf logs a formatted debug-level message.
func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.logf("DEBUG", format, args...)
}

// Infof logs a formatted info-level message.
func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.logf("INFO", format, args...)
}

// Warnf logs a formatted warn-level message.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logf("WARN", format, args...)
}

// Errorf logs a formatted error-level message.
func (fl *FileLogger) Errorf(format string, args ...interface{}) {
	fl.logf("ERROR", format, args...)
}

func (fl *FileLogger) logf(level string, format string, args ...interface{}) {
	if logLevelToInt(strings.ToLower(level)) < logLevelToInt(fl.logLevel) {
		return
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}

	line := fmt.Sprintf("[%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, fmt.Sprintf(format, args...))
	fl.runLog.WriteString(line)
}
