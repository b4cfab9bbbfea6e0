package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
	"github.com/ShayCichocki/qforge/internal/state"
)

var (
	statusLimit int
	statusPurge time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show recent workflows and optimization runs",
	Long: `Display recent activity from the audit database.

Without arguments, shows:
  - Recent workflows with strategy, status and duration
  - Recent optimizer runs with MDL, improvement and fingerprint

With a workflow ID, shows that workflow and its recorded event history.
With --purge, first deletes recorded events older than the given age.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of entries to show")
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete recorded events older than this age (e.g. 720h)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := cfg.Audit.Path
	if dbPath == "" {
		dbPath = state.ProjectDBPath(cwd)
	} else if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cwd, dbPath)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No workflows recorded. Run 'qforge run --tasks <glob>' to start.")
		return nil
	}

	db, err := openAudit(cfg, cwd)
	if err != nil {
		return err
	}
	defer db.Close()

	if statusPurge > 0 {
		n, err := db.PurgeOldEvents(statusPurge)
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("purged %d events older than %s", n, statusPurge), color.FgGreen)
	}

	if len(args) == 1 {
		return displayWorkflow(db, args[0])
	}

	workflows, err := db.RecentWorkflows(statusLimit)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}
	displayWorkflows(workflows)

	runs, err := db.RecentOptimizations(statusLimit)
	if err != nil {
		return fmt.Errorf("list optimizations: %w", err)
	}
	displayOptimizations(runs)
	return nil
}

func displayWorkflows(records []state.WorkflowRecord) {
	fmt.Println("Recent workflows:")
	if len(records) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, r := range records {
		strategy := r.Strategy
		if r.EffectiveStrategy != "" && r.EffectiveStrategy != r.Strategy {
			strategy = fmt.Sprintf("%s→%s", r.Strategy, r.EffectiveStrategy)
		}
		fmt.Printf("  %s %-24s %-20s %-10s %8s  %s\n",
			statusSymbol(r.Status), r.ID, strategy, r.Status,
			r.Duration.Round(time.Millisecond), r.SubmittedAt.Local().Format("2006-01-02 15:04"))
		if r.Summary != "" {
			fmt.Printf("      %s\n", color.HiBlackString(r.Summary))
		}
	}
}

// displayWorkflow prints one workflow and its recorded event history.
func displayWorkflow(db *state.DB, id string) error {
	w, err := db.GetWorkflow(id)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("workflow %s not found", id)
	}

	fmt.Printf("%s %s\n", statusSymbol(w.Status), w.ID)
	fmt.Printf("  status:    %s\n", w.Status)
	fmt.Printf("  strategy:  %s\n", w.Strategy)
	if w.EffectiveStrategy != "" {
		fmt.Printf("  effective: %s\n", w.EffectiveStrategy)
	}
	fmt.Printf("  submitted: %s\n", w.SubmittedAt.Local().Format(time.RFC3339))
	if w.EndedAt != nil {
		fmt.Printf("  ended:     %s (%s)\n", w.EndedAt.Local().Format(time.RFC3339), w.Duration.Round(time.Millisecond))
	}
	if w.Summary != "" {
		fmt.Printf("  summary:   %s\n", w.Summary)
	}

	events, err := db.WorkflowEvents(id)
	if err != nil {
		return err
	}
	fmt.Printf("\nEvents (%d):\n", len(events))
	for _, ev := range events {
		fmt.Printf("  %s %s\n", color.HiBlackString(ev.Timestamp.Local().Format("15:04:05.000")), describeEvent(ev))
	}
	return nil
}

// describeEvent renders a recorded event as one line.
func describeEvent(ev orchestrator.Event) string {
	line := string(ev.Type)
	if ev.TaskID != "" {
		line += " " + ev.TaskID
	}
	if ev.WorkerID != "" {
		line += " on " + ev.WorkerID
	}
	if ev.Attempt > 0 {
		line += fmt.Sprintf(" (attempt %d)", ev.Attempt)
	}
	if ev.Status != "" {
		line += " [" + ev.Status + "]"
	}
	if ev.Error != "" {
		line += ": " + ev.Error
	} else if ev.Message != "" {
		line += ": " + ev.Message
	}
	return line
}

func displayOptimizations(records []state.OptimizationRecord) {
	fmt.Println("\nRecent optimizations:")
	if len(records) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, r := range records {
		workflow := r.WorkflowID
		if workflow == "" {
			workflow = "-"
		}
		seq := r.Sequence
		if seq == "" {
			seq = "-"
		}
		fp := r.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Printf("  %s  %-24s mdl=%.4f Δ=%.4f %-12s %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), workflow, r.MDL, r.Delta, seq, fp)
	}
}

func statusSymbol(status string) string {
	switch status {
	case "completed":
		return color.GreenString("✓")
	case "failed":
		return color.RedString("✗")
	case "running":
		return color.CyanString("→")
	default:
		return color.HiBlackString("·")
	}
}
