// Package cli wires the autofix commands. Commands construct their own
// dependencies from configuration so each one stays independently testable.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "autofix",
	Short: "autofix is a multi-agent auto-fix pipeline for GitHub issues",
	Long: `autofix drives GitHub issues through a triage, research, fix, and review
agent pipeline powered by the Claude CLI, publishing approved fixes as
draft pull requests.

All agent work happens in a dedicated tool-managed clone; your own checkout
is never touched. Run records live under the runs directory (JSON state per
agent, raw logs, and a SQLite event database).`,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the effective configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./autofix.yaml, ~/.autofix/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
