// Package cmd wires the foreman CLI: loading configuration, constructing
// the execution components, and exposing them as cobra subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for foreman
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Automated software-delivery execution backbone",
		Long: `Foreman executes work items end to end: it asks an external code
generator for changes, verifies them with the project's test, lint, build,
and typecheck commands, retries transient failures with backoff, and
escalates to a human operator when automation cannot proceed.

Progress is checkpointed per task so interrupted runs can resume, and every
attempt is recorded in a local history database.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewVerifyCommand())
	cmd.AddCommand(NewEscalationsCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
