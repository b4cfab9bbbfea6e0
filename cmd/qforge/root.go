package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/qforge/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "qforge",
	Short: "Workflow coordinator & category optimizer",
	Long: `qforge runs workflows of dependent tasks across a pool of workers.

Tasks are loaded from YAML task files, scheduled sequentially, in parallel
batches, or in a hybrid of both, and retried with exponential backoff.
Failed workers are recovered by redirect, retry, queue or escalate.

The optimizer groups tasks into categories and searches for the grouping
with the smallest description length.

Core capabilities:
- Dependency-ordered execution with cycle detection
- Capability-based worker scoring and failover
- Audit trail in SQLite, events on NATS, Prometheus metrics
- Live progress view`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config plus .qforge.yaml overrides)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write debug-level messages to the debug log")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the --config file when given, otherwise the layered config.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
