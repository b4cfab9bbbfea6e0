package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/internal/optimizer"
	"github.com/ShayCichocki/qforge/internal/orchestrator"
	"github.com/ShayCichocki/qforge/internal/taskfile"
)

var (
	optimizeTasks      string
	optimizeIterations int
	optimizeOut        string
	optimizeMarkdown   bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search for the lowest-MDL category grouping of a workflow",
	Long: `Map the tasks of a workflow into categories and run the local-search
optimizer that rotates the highest-entropy category while the total
description length (MDL) keeps improving.

With --out the result is written as a JSON blueprint identified by its
blake3 fingerprint; --markdown writes a markdown report next to it.
Each run is recorded in the audit database and listed by 'qforge status'.`,
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeTasks, "tasks", "t", "", "Task file or glob pattern (required)")
	optimizeCmd.Flags().IntVarP(&optimizeIterations, "iterations", "n", -1, "Maximum iterations (default: optimizer.max_iterations from config)")
	optimizeCmd.Flags().StringVarP(&optimizeOut, "out", "o", "", "Write the result as JSON to this file")
	optimizeCmd.Flags().BoolVar(&optimizeMarkdown, "markdown", false, "Also write a markdown report (requires --out)")
	_ = optimizeCmd.MarkFlagRequired("tasks")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	if optimizeMarkdown && optimizeOut == "" {
		return fmt.Errorf("--markdown requires --out")
	}

	def, err := taskfile.Load(optimizeTasks)
	if err != nil {
		return err
	}

	iterations := optimizeIterations
	if iterations < 0 {
		iterations = cfg.Optimizer.MaxIterations
	}

	ctx := context.Background()
	hs, err := buildHooks(ctx, cfg, repoPath, "")
	if err != nil {
		return err
	}
	defer hs.Close()

	logger := newLogger(cfg, repoPath)
	defer logger.Close()

	// Optimization never dispatches tasks, so the simulated caller is enough.
	orch, err := orchestrator.New(orchestrator.RequiredConfig{Caller: &agent.DryRunCaller{}},
		orchestratorOptions(cfg, logger, hs.hooks, nil)...)
	if err != nil {
		return err
	}
	defer orch.Stop()

	res := orch.Optimize(ctx, def.Workflow, def.Tasks, iterations)
	printOptimization(res, len(def.Tasks))

	if optimizeOut != "" {
		if err := writeBlueprint(optimizeOut, res, optimizeMarkdown); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("blueprint written to %s", optimizeOut), color.FgGreen)
	}
	return nil
}

// optimizationHeadline counts input tasks. The best configuration can hold
// fewer components once duplicates are merged.
func optimizationHeadline(res optimizer.Result, inputTasks int) string {
	kept := 0
	for _, c := range res.Categories {
		kept += len(c.Components)
	}
	line := fmt.Sprintf("%d tasks, %d iterations", inputTasks, len(res.Steps))
	if kept != inputTasks {
		line += fmt.Sprintf(" (%d kept after transforms)", kept)
	}
	return line
}

func printOptimization(res optimizer.Result, inputTasks int) {
	printStatus("◆", optimizationHeadline(res, inputTasks), color.FgCyan)
	fmt.Printf("  baseline MDL  %.4f\n", res.BaselineMDL)
	fmt.Printf("  final MDL     %.4f\n", res.FinalMDL)
	fmt.Printf("  improvement   %.4f (%.2f%%)\n", res.Improvement, res.ImprovementPct)
	seq := res.Sequence()
	if seq == "" {
		seq = "-"
	}
	fmt.Printf("  sequence      %s\n", seq)
	fmt.Printf("  fingerprint   %s\n\n", res.Fingerprint)

	for _, c := range res.Categories {
		if len(c.Components) == 0 {
			continue
		}
		ids := make([]string, 0, len(c.Components))
		for _, comp := range c.Components {
			ids = append(ids, comp.TaskID)
		}
		fmt.Printf("  %-10s w=%.2f H=%.4f  %s\n", c.Name, c.Weight, c.Entropy, strings.Join(ids, ", "))
	}
}

// writeBlueprint writes the result as indented JSON and, optionally, a
// markdown report with the same base name.
func writeBlueprint(path string, res optimizer.Result, markdown bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if !markdown {
		return nil
	}
	mdPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	if err := os.WriteFile(mdPath, []byte(res.Markdown()), 0644); err != nil {
		return fmt.Errorf("write %s: %w", mdPath, err)
	}
	return nil
}
