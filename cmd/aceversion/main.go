// Package main provides the CLI entry point for the ACE version assignment
// service.
//
// aceversion assigns conversation users to versions of a base character
// (system prompt and pipeline variants) using configurable strategies, keeps
// those assignments sticky, and reports on distribution health.
//
// # Basic Usage
//
// Start the admin server:
//
//	aceversion serve --config aceversion.yaml
//
// Inspect a character's draw distribution without touching storage:
//
//	aceversion distribution plato --draws 10000
//
// Validate a configuration file:
//
//	aceversion validate --config aceversion.yaml
//
// # Environment Variables
//
// Configuration files are expanded with os.ExpandEnv before parsing, so
// values such as the Postgres DSN can reference $VAR placeholders.
//
//   - ACEVERSION_CONFIG: Path to configuration file (default: aceversion.yaml)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Configure structured logging with JSON output for production parsing.
	// Command handlers replace this with the configured logger once the
	// config file has been loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aceversion",
		Short: "aceversion - character version assignment and analytics service",
		Long: `aceversion routes conversation users to versions of a base character.

Each base character (Plato, Terry Pratchett, ...) can ship multiple versions
with different system prompts or pipeline settings. aceversion assigns users
to versions via weighted, random, manual, or experiment strategies, keeps
assignments sticky across sessions, records assignment events, and reports
whether observed traffic matches the configured distribution.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildValidateCmd(),
		buildAssignCmd(),
		buildReassignCmd(),
		buildDistributionCmd(),
		buildSimulateCmd(),
		buildAnalyticsCmd(),
		buildHealthCmd(),
	)

	return rootCmd
}

// resolveConfigPath applies the ACEVERSION_CONFIG fallback and the default
// file name when no explicit --config flag was given.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("ACEVERSION_CONFIG"); env != "" {
		return env
	}
	return "aceversion.yaml"
}
