package cmd

import (
	"fmt"

	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/verify"
)

// retryPolicyFor builds the retry policy for one work item: the configured
// defaults overlaid with any per-item overrides.
func retryPolicyFor(cfg *config.Config, item *models.WorkItem) (executor.RetryPolicy, error) {
	policy := executor.DefaultRetryPolicy()

	mode, err := executor.ParseBackoffMode(cfg.Retry.Backoff)
	if err != nil {
		return policy, fmt.Errorf("config: %w", err)
	}
	policy.Backoff = mode
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		policy.BaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		policy.MaxDelay = cfg.Retry.MaxDelay
	}
	policy.Timeout = cfg.Retry.Timeout

	if item == nil || item.Retry == nil {
		return policy, nil
	}

	override := item.Retry
	if override.MaxAttempts > 0 {
		policy.MaxAttempts = override.MaxAttempts
	}
	if override.Backoff != "" {
		mode, err := executor.ParseBackoffMode(override.Backoff)
		if err != nil {
			return policy, fmt.Errorf("work item %s: %w", item.ID, err)
		}
		policy.Backoff = mode
	}
	if policy.BaseDelay, err = models.ParseDuration(override.BaseDelay, policy.BaseDelay); err != nil {
		return policy, fmt.Errorf("work item %s: retry base_delay: %w", item.ID, err)
	}
	if policy.MaxDelay, err = models.ParseDuration(override.MaxDelay, policy.MaxDelay); err != nil {
		return policy, fmt.Errorf("work item %s: retry max_delay: %w", item.ID, err)
	}
	if policy.Timeout, err = models.ParseDuration(override.Timeout, policy.Timeout); err != nil {
		return policy, fmt.Errorf("work item %s: retry timeout: %w", item.ID, err)
	}
	return policy, nil
}

// pipelineConfigFor builds the verification pipeline config for one work
// item: the configured defaults overlaid with any per-item overrides.
func pipelineConfigFor(cfg *config.Config, item *models.WorkItem) (verify.Config, error) {
	vc := verify.Config{
		Commands:          make(map[verify.Step]string),
		MaxFixIterations:  cfg.Verification.MaxFixIterations,
		ContinueOnFailure: cfg.Verification.ContinueOnFailure,
		StepTimeout:       cfg.Verification.StepTimeout,
	}

	steps, err := parseSteps(cfg.Verification.Steps)
	if err != nil {
		return vc, fmt.Errorf("config verification steps: %w", err)
	}
	vc.Steps = steps

	for name, command := range cfg.Verification.Commands {
		step, err := verify.ParseStep(name)
		if err != nil {
			return vc, fmt.Errorf("config verification commands: %w", err)
		}
		vc.Commands[step] = command
	}
	if len(cfg.Verification.FixCommands) > 0 {
		vc.FixCommands = make(map[verify.Step]string)
		for name, command := range cfg.Verification.FixCommands {
			step, err := verify.ParseStep(name)
			if err != nil {
				return vc, fmt.Errorf("config verification fix_commands: %w", err)
			}
			vc.FixCommands[step] = command
		}
	}
	if len(cfg.Verification.AutoFix) > 0 {
		vc.AutoFixSteps = make(map[verify.Step]bool)
		for _, name := range cfg.Verification.AutoFix {
			step, err := verify.ParseStep(name)
			if err != nil {
				return vc, fmt.Errorf("config verification auto_fix: %w", err)
			}
			vc.AutoFixSteps[step] = true
		}
	}

	if item == nil || item.Verification == nil {
		return vc, nil
	}

	override := item.Verification
	if len(override.Steps) > 0 {
		steps, err := parseSteps(override.Steps)
		if err != nil {
			return vc, fmt.Errorf("work item %s: verification steps: %w", item.ID, err)
		}
		vc.Steps = steps
	}
	for name, command := range override.Commands {
		step, err := verify.ParseStep(name)
		if err != nil {
			return vc, fmt.Errorf("work item %s: verification commands: %w", item.ID, err)
		}
		vc.Commands[step] = command
	}
	if override.MaxFixIterations != nil {
		vc.MaxFixIterations = *override.MaxFixIterations
	}
	if override.ContinueOnFailure != nil {
		vc.ContinueOnFailure = *override.ContinueOnFailure
	}
	return vc, nil
}

func parseSteps(names []string) ([]verify.Step, error) {
	var steps []verify.Step
	for _, name := range names {
		step, err := verify.ParseStep(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
