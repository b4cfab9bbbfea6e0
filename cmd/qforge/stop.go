package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/qforge/internal/signals"
)

var stopClear bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the workflow running in this directory",
	Long: `Ask a qforge run started from the current directory to stop.

The running workflow cancels its remaining tasks and exits with its partial
status. With --clear, a pending stop request is withdrawn instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		return requestStop(repoPath, stopClear)
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopClear, "clear", false, "Withdraw a pending stop request")
}

func requestStop(repoPath string, withdraw bool) error {
	if withdraw {
		if err := signals.Clear(repoPath); err != nil {
			return fmt.Errorf("clear stop signal: %w", err)
		}
		printStatus("✓", "stop request cleared", color.FgGreen)
		return nil
	}
	if err := signals.SendStop(repoPath); err != nil {
		return fmt.Errorf("send stop signal: %w", err)
	}
	printStatus("■", fmt.Sprintf("stop requested (%s)", filepath.Join(signals.Dir(repoPath), signals.StopFile)), color.FgYellow)
	return nil
}
