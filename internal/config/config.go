// Package config loads foreman configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where foreman looks for configuration relative to the
// project root.
const DefaultPath = ".foreman/config.yaml"

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay"`

	// Backoff mode: fixed, linear, or exponential.
	Backoff string `yaml:"backoff"`

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Timeout bounds each individual attempt (0 = unbounded).
	Timeout time.Duration `yaml:"timeout"`
}

// VerificationConfig configures the verification pipeline.
type VerificationConfig struct {
	// Steps is the ordered subset of steps to run.
	Steps []string `yaml:"steps"`

	// Commands maps step names to shell commands.
	Commands map[string]string `yaml:"commands"`

	// FixCommands maps step names to auto-fix commands.
	FixCommands map[string]string `yaml:"fix_commands"`

	// AutoFix lists the steps allowed to run the fix loop.
	AutoFix []string `yaml:"auto_fix"`

	// MaxFixIterations bounds the fix/re-run loop per step.
	MaxFixIterations int `yaml:"max_fix_iterations"`

	// ContinueOnFailure aggregates all step failures before escalating.
	ContinueOnFailure bool `yaml:"continue_on_failure"`

	// StepTimeout bounds each step command.
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// GeneratorConfig configures the external code-generator collaborator.
type GeneratorConfig struct {
	// Command is the generator binary invoked with a JSON request on stdin.
	Command string `yaml:"command"`

	// Timeout bounds a single generator invocation.
	Timeout time.Duration `yaml:"timeout"`
}

// Config represents foreman configuration options.
type Config struct {
	// LogLevel sets logging verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written.
	LogDir string `yaml:"log_dir"`

	// CheckpointDir holds per-task checkpoint files.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// EscalationDir holds per-task escalation reports.
	EscalationDir string `yaml:"escalation_dir"`

	// HistoryDB is the SQLite execution-history database path.
	HistoryDB string `yaml:"history_db"`

	// ProjectRoot is the working directory for verification commands and
	// the generator.
	ProjectRoot string `yaml:"project_root"`

	// Retry configures the retry executor.
	Retry RetryConfig `yaml:"retry"`

	// Verification configures the verification pipeline.
	Verification VerificationConfig `yaml:"verification"`

	// Generator configures the code-generator collaborator.
	Generator GeneratorConfig `yaml:"generator"`
}

// DefaultConfig returns a Config with sensible default values. Step
// commands default to the host Go project's tooling.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		LogDir:        ".foreman/logs",
		CheckpointDir: ".foreman/checkpoints",
		EscalationDir: ".foreman/escalations",
		HistoryDB:     ".foreman/history.db",
		ProjectRoot:   ".",
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Backoff:     "exponential",
			MaxDelay:    30 * time.Second,
			Timeout:     10 * time.Minute,
		},
		Verification: VerificationConfig{
			Steps: []string{"test", "lint", "build", "typecheck"},
			Commands: map[string]string{
				"test":      "go test ./...",
				"lint":      "golangci-lint run",
				"build":     "go build ./...",
				"typecheck": "go vet ./...",
			},
			MaxFixIterations:  2,
			ContinueOnFailure: true,
			StepTimeout:       5 * time.Minute,
		},
		Generator: GeneratorConfig{
			Command: "codegen",
			Timeout: 15 * time.Minute,
		},
	}
}

// LoadConfig loads configuration from the specified file path. If the file
// doesn't exist, returns default configuration without error. If the file
// exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations appear as strings in YAML; parse via a shadow struct so a
	// malformed value reports its field.
	type retryYAML struct {
		MaxAttempts int    `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
		Backoff     string `yaml:"backoff"`
		MaxDelay    string `yaml:"max_delay"`
		Timeout     string `yaml:"timeout"`
	}
	type verificationYAML struct {
		Steps             []string          `yaml:"steps"`
		Commands          map[string]string `yaml:"commands"`
		FixCommands       map[string]string `yaml:"fix_commands"`
		AutoFix           []string          `yaml:"auto_fix"`
		MaxFixIterations  *int              `yaml:"max_fix_iterations"`
		ContinueOnFailure *bool             `yaml:"continue_on_failure"`
		StepTimeout       string            `yaml:"step_timeout"`
	}
	type generatorYAML struct {
		Command string `yaml:"command"`
		Timeout string `yaml:"timeout"`
	}
	type configYAML struct {
		LogLevel      string           `yaml:"log_level"`
		LogDir        string           `yaml:"log_dir"`
		CheckpointDir string           `yaml:"checkpoint_dir"`
		EscalationDir string           `yaml:"escalation_dir"`
		HistoryDB     string           `yaml:"history_db"`
		ProjectRoot   string           `yaml:"project_root"`
		Retry         retryYAML        `yaml:"retry"`
		Verification  verificationYAML `yaml:"verification"`
		Generator     generatorYAML    `yaml:"generator"`
	}

	var raw configYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogDir, raw.LogDir)
	setString(&cfg.CheckpointDir, raw.CheckpointDir)
	setString(&cfg.EscalationDir, raw.EscalationDir)
	setString(&cfg.HistoryDB, raw.HistoryDB)
	setString(&cfg.ProjectRoot, raw.ProjectRoot)

	if raw.Retry.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = raw.Retry.MaxAttempts
	}
	setString(&cfg.Retry.Backoff, raw.Retry.Backoff)
	if err := setDuration(&cfg.Retry.BaseDelay, raw.Retry.BaseDelay, "retry.base_delay"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Retry.MaxDelay, raw.Retry.MaxDelay, "retry.max_delay"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Retry.Timeout, raw.Retry.Timeout, "retry.timeout"); err != nil {
		return nil, err
	}

	if len(raw.Verification.Steps) > 0 {
		cfg.Verification.Steps = raw.Verification.Steps
	}
	for step, cmd := range raw.Verification.Commands {
		cfg.Verification.Commands[step] = cmd
	}
	if len(raw.Verification.FixCommands) > 0 {
		cfg.Verification.FixCommands = raw.Verification.FixCommands
	}
	if len(raw.Verification.AutoFix) > 0 {
		cfg.Verification.AutoFix = raw.Verification.AutoFix
	}
	if raw.Verification.MaxFixIterations != nil {
		cfg.Verification.MaxFixIterations = *raw.Verification.MaxFixIterations
	}
	if raw.Verification.ContinueOnFailure != nil {
		cfg.Verification.ContinueOnFailure = *raw.Verification.ContinueOnFailure
	}
	if err := setDuration(&cfg.Verification.StepTimeout, raw.Verification.StepTimeout, "verification.step_timeout"); err != nil {
		return nil, err
	}

	setString(&cfg.Generator.Command, raw.Generator.Command)
	if err := setDuration(&cfg.Generator.Timeout, raw.Generator.Timeout, "generator.timeout"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromRoot loads the config at its default path under root.
func LoadFromRoot(root string) (*Config, error) {
	return LoadConfig(filepath.Join(root, DefaultPath))
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s duration %q: %w", field, value, err)
	}
	*dst = d
	return nil
}
