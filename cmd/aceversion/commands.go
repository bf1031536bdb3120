// Package main provides the CLI entry point for the ACE version assignment
// service.
//
// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder function creates a command and wires
// it to its handler.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the admin server.
// This is the primary command for running aceversion in production.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the version assignment admin server",
		Long: `Start the admin HTTP server for version assignment and analytics.

The server will:
1. Load configuration from the specified file (or aceversion.yaml)
2. Register every configured character's version config
3. Open the configured storage backend (memory, sqlite, or postgres)
4. Serve the assignment, event, and analytics API plus /healthz and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  aceversion serve

  # Start with custom config
  aceversion serve --config /etc/aceversion/production.yaml

  # Start with debug logging
  aceversion serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Validate Command
// =============================================================================

// buildValidateCmd creates the "validate" command that checks a config file
// without starting anything.
func buildValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load and validate a configuration file.

Checks the storage driver, server settings, and every character's version
config: version lists, default versions, and strategy parameters such as
weight sums and experiment splits. Exits non-zero on the first problem.`,
		Example: `  aceversion validate --config aceversion.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")

	return cmd
}

// =============================================================================
// Assignment Commands
// =============================================================================

// buildAssignCmd creates the "assign" command that resolves (and persists)
// a user's version for one character.
func buildAssignCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "assign <user-id> <character-id>",
		Short: "Resolve a user's version for a character",
		Long: `Resolve the version a user should receive for a character.

If the user already has a sticky assignment it is returned unchanged;
otherwise a new assignment is drawn with the character's strategy and
persisted to the configured storage backend.`,
		Example: `  aceversion assign user-123 plato --config aceversion.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(cmd.Context(), configPath, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")

	return cmd
}

// buildReassignCmd creates the "reassign" command that forces a user onto a
// specific version.
func buildReassignCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reassign <user-id> <character-id> <version-id>",
		Short: "Force a user onto a specific version",
		Long: `Overwrite a user's assignment with a specific version.

The target version must exist in the character's version list. A
"reassigned" event is recorded with the previous version for audit.`,
		Example: `  aceversion reassign user-123 plato enhanced --config aceversion.yaml`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReassign(cmd.Context(), configPath, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")

	return cmd
}

// =============================================================================
// Reporting Commands
// =============================================================================

// buildDistributionCmd creates the "distribution" command that samples the
// strategy without writing assignments.
func buildDistributionCmd() *cobra.Command {
	var (
		configPath string
		draws      int
	)

	cmd := &cobra.Command{
		Use:   "distribution <character-id>",
		Short: "Sample a character's assignment strategy",
		Long: `Run the character's assignment strategy repeatedly and report the
observed proportions next to the configured expectation.

Draws are not persisted; this is a dry run of the strategy itself.`,
		Example: `  aceversion distribution plato --draws 10000`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDistribution(cmd.Context(), configPath, args[0], draws)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	cmd.Flags().IntVar(&draws, "draws", 1000, "Number of strategy draws to sample")

	return cmd
}

// buildSimulateCmd creates the "simulate" command that persists synthetic
// user assignments.
func buildSimulateCmd() *cobra.Command {
	var (
		configPath string
		users      int
	)

	cmd := &cobra.Command{
		Use:   "simulate <character-id>",
		Short: "Assign synthetic users through the full pipeline",
		Long: `Create synthetic users and run each through the full assignment
pipeline, persisting assignments and events to the configured backend.

Synthetic user ids carry a "sim-" prefix so they can be told apart from
real traffic in analytics.`,
		Example: `  aceversion simulate plato --users 500 --config aceversion.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), configPath, args[0], users)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	cmd.Flags().IntVar(&users, "users", 100, "Number of synthetic users to assign")

	return cmd
}

// buildAnalyticsCmd creates the "analytics" command that reports stored
// assignment counts for one character.
func buildAnalyticsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "analytics <character-id>",
		Short: "Report stored assignment analytics for a character",
		Long: `Scan stored assignments for a character and report per-version
counts, observed proportions, expected proportions, and the deviation
between the two.`,
		Example: `  aceversion analytics plato --config aceversion.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalytics(cmd.Context(), configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")

	return cmd
}

// buildHealthCmd creates the "health" command that scores distribution
// health across all configured characters.
func buildHealthCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Score distribution health across all characters",
		Long: `Compare the stored assignment distribution of every configured
character against its expected distribution and report a 0-100 health
score per character plus the overall mean.`,
		Example: `  aceversion health --config aceversion.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")

	return cmd
}
