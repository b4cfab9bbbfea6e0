package orchestrator

import (
	"context"
	"time"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// Defaults applied when no option overrides them.
const (
	DefaultBackoffUnit     = time.Second
	DefaultLoadPerTask     = 0.1
	DefaultFailoverRounds  = 1
	DefaultEventBufferSize = 256
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
type RequiredConfig struct {
	// Caller executes tasks on workers.
	Caller agent.Caller
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	defaultStrategy  models.Strategy
	maxAttempts      int
	backoffUnit      time.Duration
	loadPerTask      float64
	failoverStrategy FailoverStrategy
	failoverRounds   int
	eventBufferSize  int
	logger           *DebugLogger
	hook             Hook
	workers          []*models.Worker

	// Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		defaultStrategy:  models.StrategyAdaptive,
		maxAttempts:      models.DefaultMaxAttempts,
		backoffUnit:      DefaultBackoffUnit,
		loadPerTask:      DefaultLoadPerTask,
		failoverStrategy: FailoverRedirect,
		failoverRounds:   DefaultFailoverRounds,
		eventBufferSize:  DefaultEventBufferSize,
		sleep:            sleepContext,
		now:              time.Now,
	}
}

// WithDefaultStrategy sets the strategy used when Submit is given none.
func WithDefaultStrategy(s models.Strategy) Option {
	return func(o *orchestratorOptions) { o.defaultStrategy = s }
}

// WithMaxAttempts sets the attempt budget for tasks that carry none.
func WithMaxAttempts(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoffUnit sets the base unit of exponential backoff (wait = 2^attempt units).
func WithBackoffUnit(d time.Duration) Option {
	return func(o *orchestratorOptions) {
		if d >= 0 {
			o.backoffUnit = d
		}
	}
}

// WithLoadPerTask sets how much load a dispatch adds to a worker.
func WithLoadPerTask(l float64) Option {
	return func(o *orchestratorOptions) {
		if l >= 0 && l <= 1 {
			o.loadPerTask = l
		}
	}
}

// WithFailover sets the strategy applied to tasks that exhaust their attempts
// and how many extra execution rounds a recovered task gets.
func WithFailover(s FailoverStrategy, maxRounds int) Option {
	return func(o *orchestratorOptions) {
		if s.Valid() {
			o.failoverStrategy = s
		}
		if maxRounds >= 0 {
			o.failoverRounds = maxRounds
		}
	}
}

// WithEventBuffer sets the size of the events channel buffer.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBufferSize = n }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithHook sets the notification hook. Multiple hooks can be combined with Hooks.
func WithHook(h Hook) Option {
	return func(o *orchestratorOptions) { o.hook = h }
}

// WithWorkers registers workers at construction time.
func WithWorkers(ws ...*models.Worker) Option {
	return func(o *orchestratorOptions) { o.workers = append(o.workers, ws...) }
}

// WithSleep replaces the backoff wait (mainly for testing).
// The function returns false if the context ended first.
func WithSleep(fn func(ctx context.Context, d time.Duration) bool) Option {
	return func(o *orchestratorOptions) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithClock replaces the time source (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
