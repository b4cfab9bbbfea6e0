package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/internal/config"
	"github.com/ShayCichocki/qforge/internal/optimizer"
	"github.com/ShayCichocki/qforge/pkg/models"
)

func TestPickStrategy(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		fromFile models.Strategy
		expected models.Strategy
		wantErr  bool
	}{
		{"flag wins", "parallel", models.StrategySequential, models.StrategyParallel, false},
		{"file used without flag", "", models.StrategyHybrid, models.StrategyHybrid, false},
		{"both empty means default", "", "", "", false},
		{"unknown flag", "round-robin", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickStrategy(tt.flag, tt.fromFile)
			if (err != nil) != tt.wantErr {
				t.Fatalf("pickStrategy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("pickStrategy(%q, %q) = %q, want %q", tt.flag, tt.fromFile, got, tt.expected)
			}
		})
	}
}

func TestDefaultPoolCoversEveryType(t *testing.T) {
	pool := defaultPool()
	for _, tt := range models.TaskTypes() {
		specialist := false
		for _, w := range pool {
			if w.Specialization == tt && w.Can(tt) {
				specialist = true
			}
		}
		if !specialist {
			t.Errorf("no specialist for %s", tt)
		}
	}
	if !pool[0].Can(models.TaskTypeCoordination) || pool[0].Specialization != "" {
		t.Errorf("first worker should be a generalist, got %+v", pool[0])
	}
}

func TestCollectWorkers(t *testing.T) {
	fromFiles := []*models.Worker{
		{ID: "w1", Capabilities: []models.TaskType{models.TaskTypePlanning}, Performance: 0.9},
	}
	fromConfig := []models.Worker{
		{ID: "w1", Capabilities: []models.TaskType{models.TaskTypeAnalysis}, Performance: 0.1},
		{ID: "w2", Capabilities: []models.TaskType{models.TaskTypeAnalysis}, Status: models.WorkerStatusOffline},
	}

	got := collectWorkers(fromFiles, fromConfig)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "w1" || got[0].Performance != 0.9 {
		t.Errorf("task-file worker should win, got %+v", got[0])
	}
	if got[0].Status != models.WorkerStatusAvailable {
		t.Errorf("missing status should default to available, got %q", got[0].Status)
	}
	if got[1].Status != models.WorkerStatusOffline {
		t.Errorf("explicit status should be kept, got %q", got[1].Status)
	}

	// Inputs are cloned.
	got[0].Capabilities[0] = models.TaskTypeKnowledge
	if fromFiles[0].Capabilities[0] != models.TaskTypePlanning {
		t.Error("collectWorkers mutated its input")
	}

	if pool := collectWorkers(nil, nil); len(pool) != len(defaultPool()) {
		t.Errorf("empty input should use the default pool, got %d workers", len(pool))
	}
}

func TestBuildCaller(t *testing.T) {
	cfg := config.Default()

	c, clients, err := buildCaller(cfg, true, 0, nil)
	if err != nil {
		t.Fatalf("buildCaller(dry-run) error = %v", err)
	}
	if _, ok := c.(*agent.DryRunCaller); !ok {
		t.Errorf("dry run should use DryRunCaller, got %T", c)
	}
	if len(clients) != 0 {
		t.Errorf("dry run should create no API clients, got %d", len(clients))
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg.Anthropic.APIKey = ""
	if _, _, err := buildCaller(cfg, false, 0, nil); !errors.Is(err, config.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key-1234567890")
	c, clients, err = buildCaller(cfg, false, 0, nil)
	if err != nil {
		t.Fatalf("buildCaller(api) error = %v", err)
	}
	if _, ok := c.(*agent.Router); !ok {
		t.Errorf("expected Router, got %T", c)
	}
	if len(clients) != 1 || string(clients[0].Model()) != cfg.Anthropic.Model {
		t.Errorf("expected one client for the default model, got %d", len(clients))
	}
}

func TestBuildCallerClientPerModel(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key-1234567890")
	cfg := config.Default()
	cfg.Anthropic.Model = "claude-sonnet-4-20250514"

	workers := []*models.Worker{
		{ID: "plain"},
		{ID: "fast-1", Model: "claude-haiku-4-5-20251001"},
		{ID: "fast-2", Model: "claude-haiku-4-5-20251001"},
		{ID: "same", Model: "claude-sonnet-4-20250514"},
		{ID: "big", Model: "claude-opus-4-1-20250805"},
	}
	_, clients, err := buildCaller(cfg, false, 0, workers)
	if err != nil {
		t.Fatalf("buildCaller error = %v", err)
	}

	var got []string
	for _, c := range clients {
		got = append(got, string(c.Model()))
	}
	want := []string{"claude-sonnet-4-20250514", "claude-haiku-4-5-20251001", "claude-opus-4-1-20250805"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("clients = %v, want %v", got, want)
	}
}

func TestWriteBlueprint(t *testing.T) {
	tasks := []*models.Task{
		{ID: "a", Type: models.TaskTypePlanning, Priority: models.PriorityHigh, EstimatedTokens: 2000},
		{ID: "b", Type: models.TaskTypeImplementation, Priority: models.PriorityMedium, DependsOn: []string{"a"}},
	}
	res := optimizer.New().Run(tasks, 3)

	out := filepath.Join(t.TempDir(), "blueprints", "run.json")
	if err := writeBlueprint(out, res, true); err != nil {
		t.Fatalf("writeBlueprint() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded optimizer.Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.Fingerprint != res.Fingerprint {
		t.Errorf("fingerprint = %q, want %q", decoded.Fingerprint, res.Fingerprint)
	}

	md, err := os.ReadFile(strings.TrimSuffix(out, ".json") + ".md")
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.Contains(string(md), "# Optimization blueprint") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
}

func TestOptimizationHeadlineCountsInputTasks(t *testing.T) {
	res := optimizer.Result{
		Categories: []optimizer.CategorySnapshot{
			{Name: optimizer.CategoryMemory, Components: []optimizer.Component{{TaskID: "a"}}},
			{Name: optimizer.CategoryCode, Components: []optimizer.Component{{TaskID: "c"}}},
		},
		Steps: make([]optimizer.Step, 4),
	}

	if got, want := optimizationHeadline(res, 3), "3 tasks, 4 iterations (2 kept after transforms)"; got != want {
		t.Errorf("headline = %q, want %q", got, want)
	}
	if got, want := optimizationHeadline(res, 2), "2 tasks, 4 iterations"; got != want {
		t.Errorf("headline = %q, want %q", got, want)
	}
}

func TestOpenAuditRelativePath(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Audit.Path = filepath.Join("data", "audit.db")

	db, err := openAudit(cfg, root)
	if err != nil {
		t.Fatalf("openAudit() error = %v", err)
	}
	defer db.Close()

	if want := filepath.Join(root, "data", "audit.db"); db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}
	if v, err := db.SchemaVersion(); err != nil || v != 3 {
		t.Errorf("SchemaVersion() = %d, %v; want 3", v, err)
	}
}
