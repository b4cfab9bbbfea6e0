package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/qforge/internal/api"
	"github.com/ShayCichocki/qforge/internal/orchestrator"
	"github.com/ShayCichocki/qforge/internal/signals"
	"github.com/ShayCichocki/qforge/internal/taskfile"
	"github.com/ShayCichocki/qforge/pkg/models"
)

var (
	runTasks       string
	runWorkflowID  string
	runStrategy    string
	runDryRun      bool
	runLatency     time.Duration
	runWatch       bool
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow from task files",
	Long: `Run a workflow of dependent tasks across the worker pool.

Tasks are loaded from every YAML file matching --tasks (doublestar globs
such as "workflows/**/*.yaml" are supported). Workers come from the task
files and the config; with neither, a default pool of one generalist and
one specialist per task type is used.

Strategies (--strategy):
  - sequential: one task at a time in dependency order
  - parallel:   ready tasks in concurrent batches
  - hybrid:     independent tasks concurrently, then the rest in order
  - adaptive:   parallel when three or more tasks are ready (default)

Use --dry-run to simulate workers without calling the Anthropic API.
Creating .qforge/signals/stop cancels a running workflow.`,
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVarP(&runTasks, "tasks", "t", "", "Task file or glob pattern (required)")
	runCmd.Flags().StringVar(&runWorkflowID, "id", "", "Workflow ID (default: from task files, else generated)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "Execution strategy: sequential, parallel, hybrid or adaptive")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Simulate workers instead of calling the API")
	runCmd.Flags().DurationVar(&runLatency, "latency", 200*time.Millisecond, "Simulated work time per task in --dry-run mode")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Show the live progress view")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :8088)")
	_ = runCmd.MarkFlagRequired("tasks")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	def, err := taskfile.Load(runTasks)
	if err != nil {
		return err
	}
	if len(def.Tasks) == 0 {
		return fmt.Errorf("no tasks found in %s", runTasks)
	}

	strategy, err := pickStrategy(runStrategy, def.Strategy)
	if err != nil {
		return err
	}
	workflowID := runWorkflowID
	if workflowID == "" {
		workflowID = def.Workflow
	}

	workers := collectWorkers(def.Workers, cfg.Workers)
	caller, clients, err := buildCaller(cfg, runDryRun, runLatency, workers)
	if err != nil {
		return err
	}

	// Handle signals for graceful shutdown
	ctx, stopNotify := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopNotify()

	watcher, err := signals.Watch(repoPath)
	if err != nil {
		return fmt.Errorf("watch stop signal: %w", err)
	}
	defer watcher.Close()
	ctx, cancel := watcher.WithCancel(ctx)
	defer cancel()

	metricsAddr := runMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	hs, err := buildHooks(ctx, cfg, repoPath, metricsAddr)
	if err != nil {
		return err
	}
	defer hs.Close()

	logger := newLogger(cfg, repoPath)
	defer logger.Close()

	orch, err := orchestrator.New(orchestrator.RequiredConfig{Caller: caller},
		orchestratorOptions(cfg, logger, hs.hooks, workers)...)
	if err != nil {
		return err
	}
	defer orch.Stop()

	ack, err := orch.Submit(ctx, workflowID, def.Tasks, strategy)
	if err != nil {
		return err
	}

	var report orchestrator.StatusReport
	if runWatch {
		report, err = runWithTUI(orch, ack, def.Tasks, cfg.TUI.RefreshRate)
	} else {
		fmt.Printf("%s workflow %s: %d tasks, %s strategy, %d workers\n",
			color.CyanString("▶"), ack.WorkflowID, ack.TaskCount, ack.Strategy, len(workers))
		report, err = runHeadless(orch, ack, watcher.Stopped())
	}
	if err != nil {
		return err
	}

	printSummary(report)
	printTokenUsage(clients)
	if watcher.ShouldStop() {
		warn("workflow stopped by %s", filepath.Join(signals.Dir(repoPath), signals.StopFile))
	}
	if log, err := orch.CompletionLog(ack.WorkflowID); err == nil && len(log) > 0 {
		printCompletionLog(log)
	}
	if dropped := orch.DroppedEvents(); dropped > 0 {
		warn("%d events dropped", dropped)
	}

	if report.Status != models.WorkflowStatusCompleted {
		return fmt.Errorf("workflow %s %s", report.WorkflowID, report.Status)
	}
	return nil
}

// pickStrategy resolves the strategy flag, then the task-file strategy.
// Empty means the configured default.
func pickStrategy(flag string, fromFile models.Strategy) (models.Strategy, error) {
	if flag == "" {
		return fromFile, nil
	}
	s := models.Strategy(flag)
	if !s.Valid() {
		return "", fmt.Errorf("unknown strategy %q (want sequential, parallel, hybrid or adaptive)", flag)
	}
	return s, nil
}

// runHeadless prints task events as they arrive and waits for the workflow.
// The workflow always finishes once its context ends, so Wait gets no deadline.
// The orchestrator is stopped on return, which flushes the event printer.
func runHeadless(orch *orchestrator.Orchestrator, ack orchestrator.Ack, stopped <-chan struct{}) (orchestrator.StatusReport, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		events := orch.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				printEvent(ev)
			case <-stopped:
				printStatus("■", "stop requested, cancelling remaining tasks", color.FgYellow)
				stopped = nil
			}
		}
	}()

	report, err := orch.Wait(context.Background(), ack.WorkflowID)
	orch.Stop()
	<-done
	return report, err
}

// printTokenUsage prints token totals and estimated cost per model for API runs.
func printTokenUsage(clients []*api.Client) {
	var total float64
	lines := 0
	for _, c := range clients {
		tr := c.Tracker()
		if tr.Calls() == 0 {
			continue
		}
		in, out := tr.Total()
		cost := tr.Cost()
		total += cost
		if lines == 0 {
			fmt.Println("\nToken usage:")
		}
		lines++
		fmt.Printf("  %-32s %6d calls %10d in %10d out  ~$%.4f\n", c.Model(), tr.Calls(), in, out, cost)
	}
	if lines > 1 {
		fmt.Printf("  %-32s ~$%.4f\n", "total", total)
	}
}

// printEvent prints one line per task transition.
func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventTaskStarted:
		printStatus("→", fmt.Sprintf("%s on %s (attempt %d)", ev.TaskID, ev.WorkerID, ev.Attempt), color.FgCyan)
	case orchestrator.EventTaskCompleted:
		printStatus("✓", fmt.Sprintf("%s by %s in %s", ev.TaskID, ev.WorkerID, ev.Duration.Round(time.Millisecond)), color.FgGreen)
	case orchestrator.EventTaskRetry:
		printStatus("↻", fmt.Sprintf("%s retry after %s: %s", ev.TaskID, ev.Duration, ev.Error), color.FgYellow)
	case orchestrator.EventTaskFailover:
		printStatus("⇄", fmt.Sprintf("%s failover %s: %s", ev.TaskID, ev.Strategy, ev.Message), color.FgYellow)
	case orchestrator.EventTaskQueued:
		printStatus("…", fmt.Sprintf("%s queued", ev.TaskID), color.FgYellow)
	case orchestrator.EventTaskFailed:
		printStatus("✗", fmt.Sprintf("%s failed: %s", ev.TaskID, ev.Error), color.FgRed)
	case orchestrator.EventTaskBlocked:
		printStatus("■", fmt.Sprintf("%s blocked: %s", ev.TaskID, ev.Message), color.FgMagenta)
	}
}

func printSummary(r orchestrator.StatusReport) {
	symbol, attr := "✓", color.FgGreen
	if r.Status != models.WorkflowStatusCompleted {
		symbol, attr = "✗", color.FgRed
	}
	fmt.Println()
	printStatus(symbol, fmt.Sprintf("workflow %s %s (%s) in %s", r.WorkflowID, r.Status, r.EffectiveStrategy, r.Elapsed.Round(time.Millisecond)), attr)

	statuses := make([]string, 0, len(r.Counts))
	for s := range r.Counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("  %-10s %d\n", s, r.Counts[models.TaskStatus(s)])
	}
	if r.Queued > 0 {
		fmt.Printf("  %-10s %d\n", "queued", r.Queued)
	}
	for _, t := range r.Tasks {
		switch t.Status {
		case models.TaskStatusFailed:
			fmt.Printf("  %s %s: %s\n", color.RedString("✗"), t.ID, t.Error)
		case models.TaskStatusBlocked:
			fmt.Printf("  %s %s: %s\n", color.MagentaString("■"), t.ID, t.BlockedReason)
		}
	}
}

func printCompletionLog(log []models.CompletionRecord) {
	fmt.Println("\nCompletion log:")
	for i, rec := range log {
		fmt.Printf("  %2d. %-20s %-20s %8s %d tok\n", i+1, rec.TaskID, rec.WorkerID, rec.Duration.Round(time.Millisecond), rec.TokenUsage)
	}
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
