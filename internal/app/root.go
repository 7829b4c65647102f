// Package app implements the devkeep command line interface.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagDataDir string
	flagDBPath  string
	flagConfig  string

	// RootCmd is the root command for devkeep
	RootCmd = &cobra.Command{
		Use:   "devkeep",
		Short: "Keep your development environment healthy, backed up, and measured",
		Long: `devkeep watches the health of your local development tooling, persists
your preferences, and drives backup and install work as explicit,
cancellable operations with a full audit history.

Quick Start:
  1. devkeep status            # see which tracked tools are installed
  2. devkeep backup create     # record the current tool set
  3. devkeep snapshot          # record host performance metrics
  4. devkeep serve --daemon    # expose the local dashboard API

Features:
  • Tool probing under a deadline (a hung tool never hangs devkeep)
  • Cached service status with an explicit force-refresh path
  • Checksummed backup manifests with retention pruning and restore
  • One operation per kind at a time, cancellable, always audited
  • Performance snapshots and impact scoring between them

Examples:
  # Check service status (cached for up to 60 seconds)
  devkeep status

  # Force fresh probes
  devkeep status --fresh

  # Create and list backups
  devkeep backup create --name pre-upgrade
  devkeep backup list

  # Score the impact of a change between two snapshots
  devkeep snapshot   # before
  devkeep snapshot   # after
  devkeep impact`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("devkeep: development environment status, backups, and history")
			fmt.Println()

			path, err := configPath()
			if err == nil {
				if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
					fmt.Println("Run 'devkeep status' to see your tooling.")
					fmt.Println("Run 'devkeep --help' for the full reference.")
					return nil
				}
			}
			fmt.Println("Tip: Run 'devkeep status' to check your tooling.")
			fmt.Println("     Run 'devkeep backup list' to review backups.")
			fmt.Println("     Run 'devkeep --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: ~/.devkeep)")
	RootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database path (default: <data-dir>/devkeep.db)")
	RootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: <data-dir>/config.json)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// dataDir returns the devkeep data directory, creating it if needed.
func dataDir() (string, error) {
	if flagDataDir != "" {
		if err := os.MkdirAll(flagDataDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
		return flagDataDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".devkeep")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create devkeep directory: %w", err)
	}
	return dir, nil
}

// configPath returns the config document path, using the flag value or default.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// dbFilePath returns the database path, using the flag value or default.
func dbFilePath() (string, error) {
	if flagDBPath != "" {
		return flagDBPath, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "devkeep.db"), nil
}

// pidFilePath returns the serve daemon PID file path.
func pidFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "serve.pid"), nil
}

// logFilePath returns the serve daemon log file path.
func logFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "serve.log"), nil
}
