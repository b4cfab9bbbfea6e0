package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/internal/api"
	"github.com/ShayCichocki/qforge/internal/config"
	"github.com/ShayCichocki/qforge/internal/metrics"
	"github.com/ShayCichocki/qforge/internal/notify"
	"github.com/ShayCichocki/qforge/internal/orchestrator"
	"github.com/ShayCichocki/qforge/internal/state"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// newLogger opens the debug log named in config, or the project default.
func newLogger(cfg *config.Config, repoPath string) *orchestrator.DebugLogger {
	if cfg.Log.Path == "" {
		return orchestrator.NewDebugLoggerForRepo(repoPath, cfg.Log.Level)
	}
	logger, err := orchestrator.NewDebugLogger(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		warn("debug log disabled: %v", err)
		return orchestrator.NopLogger()
	}
	return logger
}

// buildCaller returns the worker backend: simulated for dry runs, the
// Anthropic API (or Bedrock) otherwise. Workers that name a model get a client
// of their own so token usage and cost are accounted per model. The returned
// clients are in creation order, default model first; dry runs return none.
func buildCaller(cfg *config.Config, dryRun bool, latency time.Duration, workers []*models.Worker) (agent.Caller, []*api.Client, error) {
	if dryRun {
		return &agent.DryRunCaller{Latency: latency}, nil, nil
	}

	clientCfg := api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or use --dry-run)", err)
		}
		clientCfg.APIKey = key
	}

	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create API client: %w", err)
	}
	clients := []*api.Client{client}
	byModel := map[anthropic.Model]*api.Client{client.Model(): client}
	router := agent.NewRouter(agent.NewAPICaller(client, 0))

	for _, w := range workers {
		if w.Model == "" {
			continue
		}
		model := anthropic.Model(w.Model)
		c, ok := byModel[model]
		if !ok {
			perModel := clientCfg
			perModel.Model = model
			if c, err = api.NewClient(perModel); err != nil {
				return nil, nil, fmt.Errorf("create API client for %s: %w", model, err)
			}
			byModel[model] = c
			clients = append(clients, c)
		}
		router.Route(w.ID, agent.NewAPICaller(c, 0))
	}
	return router, clients, nil
}

// defaultPool is used when neither the task files nor the config name workers:
// one generalist plus one specialist per task type.
func defaultPool() []*models.Worker {
	pool := []*models.Worker{{
		ID:             "generalist",
		Capabilities:   models.TaskTypes(),
		Status:         models.WorkerStatusAvailable,
		Performance:    0.7,
		CostEfficiency: 0.8,
	}}
	for _, tt := range models.TaskTypes() {
		pool = append(pool, &models.Worker{
			ID:             string(tt) + "-specialist",
			Capabilities:   []models.TaskType{tt},
			Specialization: tt,
			Status:         models.WorkerStatusAvailable,
			Performance:    0.9,
			CostEfficiency: 0.6,
		})
	}
	return pool
}

// collectWorkers merges task-file workers with configured ones. Task files win
// on duplicate IDs. An empty result falls back to defaultPool.
func collectWorkers(fromFiles []*models.Worker, fromConfig []models.Worker) []*models.Worker {
	seen := make(map[string]bool)
	var out []*models.Worker
	for _, w := range fromFiles {
		if w == nil || seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		out = append(out, w.Clone())
	}
	for i := range fromConfig {
		w := fromConfig[i]
		if seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		out = append(out, w.Clone())
	}
	if len(out) == 0 {
		return defaultPool()
	}
	for _, w := range out {
		if w.Status == "" {
			w.Status = models.WorkerStatusAvailable
		}
	}
	return out
}

// hookSet holds the optional event sinks of one command invocation.
type hookSet struct {
	hooks     orchestrator.Hooks
	audit     *state.DB
	publisher *notify.Publisher
	metrics   *metrics.Metrics
}

// buildHooks opens the audit database, the NATS publisher and the metrics
// registry that the config enables. Optional sinks that cannot be reached
// are reported and skipped.
func buildHooks(ctx context.Context, cfg *config.Config, repoPath, metricsAddr string) (*hookSet, error) {
	hs := &hookSet{}

	if cfg.Audit.Enabled {
		db, err := openAudit(cfg, repoPath)
		if err != nil {
			return nil, err
		}
		hs.audit = db
		hs.hooks = append(hs.hooks, db)
	}

	if cfg.Events.NATSURL != "" {
		pub, err := notify.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			warn("event publishing disabled: %v", err)
		} else {
			hs.publisher = pub
			hs.hooks = append(hs.hooks, pub)
		}
	}

	if metricsAddr != "" {
		m := metrics.New()
		hs.metrics = m
		hs.hooks = append(hs.hooks, m)
		go func() {
			if err := m.Serve(ctx, metricsAddr); err != nil {
				warn("metrics endpoint stopped: %v", err)
			}
		}()
	}

	return hs, nil
}

// Close releases every sink. Safe on a nil set.
func (hs *hookSet) Close() {
	if hs == nil {
		return
	}
	if hs.publisher != nil {
		_ = hs.publisher.Close()
	}
	if hs.audit != nil {
		_ = hs.audit.Close()
	}
}

// openAudit opens and migrates the audit database named in config.
// Relative paths are resolved against the repository root.
func openAudit(cfg *config.Config, repoPath string) (*state.DB, error) {
	path := cfg.Audit.Path
	if path == "" {
		path = state.ProjectDBPath(repoPath)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(repoPath, path)
	}

	db, err := state.OpenWithDriver(cfg.Audit.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return db, nil
}

// orchestratorOptions translates config into orchestrator options.
func orchestratorOptions(cfg *config.Config, logger *orchestrator.DebugLogger, hooks orchestrator.Hook, workers []*models.Worker) []orchestrator.Option {
	opts := []orchestrator.Option{
		orchestrator.WithDefaultStrategy(models.Strategy(cfg.Orchestrator.DefaultStrategy)),
		orchestrator.WithMaxAttempts(cfg.Orchestrator.MaxAttempts),
		orchestrator.WithBackoffUnit(cfg.Orchestrator.BackoffUnit),
		orchestrator.WithLoadPerTask(cfg.Orchestrator.LoadPerTask),
		orchestrator.WithFailover(orchestrator.FailoverStrategy(cfg.Failover.Strategy), cfg.Failover.MaxRounds),
		orchestrator.WithLogger(logger),
		orchestrator.WithWorkers(workers...),
	}
	if hooks != nil {
		opts = append(opts, orchestrator.WithHook(hooks))
	}
	return opts
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}
