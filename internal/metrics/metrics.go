// Package metrics exposes Prometheus instruments for workflows, tasks,
// failover and the optimizer.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
)

// Metrics holds all Prometheus metrics for qforge.
type Metrics struct {
	// Workflow metrics
	WorkflowsSubmitted *prometheus.CounterVec
	WorkflowsFinished  *prometheus.CounterVec
	WorkflowDuration   *prometheus.HistogramVec
	WorkflowsRunning   prometheus.Gauge

	// Task metrics
	TaskAttempts *prometheus.CounterVec
	TaskOutcomes *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	TaskTokens   *prometheus.CounterVec
	TaskRetries  *prometheus.CounterVec

	// Recovery metrics
	Failovers *prometheus.CounterVec

	// Optimizer metrics
	OptimizerRuns  prometheus.Counter
	OptimizerMDL   prometheus.Gauge
	OptimizerDelta prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.registry = reg
	return m
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WorkflowsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_workflows_submitted_total",
				Help: "Total number of workflow runs started",
			},
			[]string{"strategy"},
		),
		WorkflowsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_workflows_finished_total",
				Help: "Total number of workflow runs by terminal status",
			},
			[]string{"status"},
		),
		WorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qforge_workflow_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"strategy"},
		),
		WorkflowsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qforge_workflows_running",
				Help: "Number of workflows currently running",
			},
		),

		TaskAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_task_attempts_total",
				Help: "Total number of task dispatches to workers",
			},
			[]string{"task_type", "worker"},
		),
		TaskOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_task_outcomes_total",
				Help: "Total number of tasks by final outcome",
			},
			[]string{"task_type", "outcome"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qforge_task_duration_seconds",
				Help:    "Duration of successful task calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_type"},
		),
		TaskTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_task_tokens_total",
				Help: "Total tokens reported by workers",
			},
			[]string{"task_type"},
		),
		TaskRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_task_retries_total",
				Help: "Total number of retried task attempts",
			},
			[]string{"task_type"},
		),

		Failovers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qforge_failovers_total",
				Help: "Total number of failover recoveries by strategy",
			},
			[]string{"strategy"},
		),

		OptimizerRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "qforge_optimizer_runs_total",
				Help: "Total number of optimizer runs",
			},
		),
		OptimizerMDL: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qforge_optimizer_mdl",
				Help: "Final MDL of the latest optimizer run",
			},
		),
		OptimizerDelta: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qforge_optimizer_mdl_delta",
				Help: "MDL improvement of the latest optimizer run",
			},
		),
	}
}

// Notify updates instruments from an orchestrator event. It never fails.
func (m *Metrics) Notify(_ context.Context, ev orchestrator.Event) error {
	taskType := string(ev.TaskType)

	switch ev.Type {
	case orchestrator.EventWorkflowStarted:
		m.WorkflowsSubmitted.WithLabelValues(ev.Strategy).Inc()
		m.WorkflowsRunning.Inc()
	case orchestrator.EventWorkflowFinished:
		m.WorkflowsFinished.WithLabelValues(ev.Status).Inc()
		m.WorkflowDuration.WithLabelValues(ev.Strategy).Observe(ev.Duration.Seconds())
		m.WorkflowsRunning.Dec()
	case orchestrator.EventTaskStarted:
		m.TaskAttempts.WithLabelValues(taskType, ev.WorkerID).Inc()
	case orchestrator.EventTaskCompleted:
		m.TaskOutcomes.WithLabelValues(taskType, "completed").Inc()
		m.TaskDuration.WithLabelValues(taskType).Observe(ev.Duration.Seconds())
		m.TaskTokens.WithLabelValues(taskType).Add(float64(ev.TokensUsed))
	case orchestrator.EventTaskFailed:
		m.TaskOutcomes.WithLabelValues(taskType, "failed").Inc()
	case orchestrator.EventTaskBlocked:
		m.TaskOutcomes.WithLabelValues(taskType, "blocked").Inc()
	case orchestrator.EventTaskRetry:
		m.TaskRetries.WithLabelValues(taskType).Inc()
	case orchestrator.EventTaskFailover, orchestrator.EventTaskQueued:
		m.Failovers.WithLabelValues(ev.Strategy).Inc()
	case orchestrator.EventOptimization:
		m.OptimizerRuns.Inc()
		m.OptimizerMDL.Set(ev.MDL)
		m.OptimizerDelta.Set(ev.Delta)
	}
	return nil
}

// Handler returns an HTTP handler serving these metrics. Instances built
// with NewMetrics on an external registry fall back to the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.WithoutCancel(ctx))
	case err := <-errc:
		return err
	}
}

var _ orchestrator.Hook = (*Metrics)(nil)
