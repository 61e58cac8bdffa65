package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "siteforge",
		Short: "SiteForge - Site Provisioning Engine",
		Long: `SiteForge provisions hosted sites end to end and keeps their running
applications reconciled with the orchestrator.

Features:
  - Linear provisioning pipeline with crash-consistent state
  - Repository creation, content merge, and webhook registration
  - Settings artifact rendering with live template reload
  - Database provisioning via CMS management commands
  - Application lifecycle reconciliation and drift correction`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "siteforge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newAdvanceCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newAppCommand())
	rootCmd.AddCommand(newRenderCommand())

	return rootCmd
}
