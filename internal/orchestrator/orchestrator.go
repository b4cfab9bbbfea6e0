package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/internal/graph"
	"github.com/ShayCichocki/qforge/internal/optimizer"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// Orchestrator owns workflows and workers and is the only writer of their state.
type Orchestrator struct {
	mu        sync.Mutex
	caller    agent.Caller
	registry  *WorkerRegistry
	workflows map[string]*workflow
	submitted []string
	stopped   bool

	opts      *orchestratorOptions
	logger    *DebugLogger
	hook      Hook
	emitter   *EventEmitter
	optimizer *optimizer.Optimizer

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Caller == nil {
		return nil, errors.New("orchestrator: caller is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if !o.defaultStrategy.Valid() {
		return nil, &ValidationError{Field: "default_strategy", Reason: fmt.Sprintf("unknown strategy %q", o.defaultStrategy)}
	}

	logger := o.logger
	if logger == nil {
		logger = NopLogger()
	}
	setPackageLogger(logger)

	orch := &Orchestrator{
		caller:    req.Caller,
		registry:  NewWorkerRegistry(),
		workflows: make(map[string]*workflow),
		opts:      o,
		logger:    logger,
		hook:      o.hook,
		emitter:   NewEventEmitter(o.eventBufferSize),
		optimizer: optimizer.New(optimizer.WithDebugLog(logger.Log), optimizer.WithClock(o.now)),
	}
	for _, w := range o.workers {
		if err := orch.registry.Register(w); err != nil {
			return nil, err
		}
	}
	return orch, nil
}

// Submit validates tasks, registers the workflow and starts its strategy in
// the background. ctx governs the run: canceling it stops new dispatches.
// An empty workflowID gets a generated one; an empty strategy uses the default.
func (o *Orchestrator) Submit(ctx context.Context, workflowID string, tasks []*models.Task, strategy models.Strategy) (Ack, error) {
	if strategy == "" {
		strategy = o.opts.defaultStrategy
	}
	if !strategy.Valid() {
		return Ack{}, &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}
	prepared, err := o.prepareTasks(tasks)
	if err != nil {
		return Ack{}, err
	}

	g := graph.New()
	g.SetDebugLog(debugLog)
	if err := g.Build(prepared); err != nil {
		return Ack{}, wrapGraphError(err)
	}

	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return Ack{}, ErrStopped
	}
	if _, exists := o.workflows[workflowID]; exists {
		o.mu.Unlock()
		return Ack{}, fmt.Errorf("%w: %s", ErrWorkflowExists, workflowID)
	}
	wf := newWorkflow(workflowID, strategy, prepared, g, o.opts.now())
	o.workflows[workflowID] = wf
	o.submitted = append(o.submitted, workflowID)
	o.startLocked(ctx, wf)
	o.mu.Unlock()

	o.logger.Log("[orchestrator] workflow %s submitted: %d tasks, strategy=%s", workflowID, len(prepared), strategy)

	return Ack{
		WorkflowID:  workflowID,
		Strategy:    strategy,
		TaskCount:   len(prepared),
		SubmittedAt: wf.submittedAt,
	}, nil
}

// prepareTasks copies and validates the input so callers keep their slices.
func (o *Orchestrator) prepareTasks(tasks []*models.Task) ([]*models.Task, error) {
	if len(tasks) == 0 {
		return nil, &ValidationError{Field: "tasks", Reason: "at least one task is required"}
	}
	out := make([]*models.Task, 0, len(tasks))
	for i, in := range tasks {
		if in == nil {
			return nil, &ValidationError{Field: fmt.Sprintf("tasks[%d]", i), Reason: "task is nil"}
		}
		t := in.Clone()
		if !t.Type.Valid() {
			return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("task %s: unknown type %q", t.ID, t.Type)}
		}
		if t.Priority == "" {
			t.Priority = models.PriorityMedium
		}
		if !t.Priority.Valid() {
			return nil, &ValidationError{Field: "priority", Reason: fmt.Sprintf("task %s: unknown priority %q", t.ID, t.Priority)}
		}
		if t.MaxAttempts < 0 {
			return nil, &ValidationError{Field: "max_attempts", Reason: fmt.Sprintf("task %s: must not be negative", t.ID)}
		}
		if t.MaxAttempts == 0 {
			t.MaxAttempts = o.opts.maxAttempts
		}
		if t.EstimatedTokens < 0 {
			return nil, &ValidationError{Field: "estimated_tokens", Reason: fmt.Sprintf("task %s: must not be negative", t.ID)}
		}
		resetTask(t)
		out = append(out, t)
	}
	return out, nil
}

// resetTask returns a task to its initial pending state.
func resetTask(t *models.Task) {
	t.Status = models.TaskStatusPending
	t.Attempts = 0
	t.FailoverRounds = 0
	t.Claimed = false
	t.BlockedReason = ""
	t.Error = ""
	t.CompletedAt = nil
}

// startLocked launches the workflow goroutine. Caller holds o.mu.
func (o *Orchestrator) startLocked(ctx context.Context, wf *workflow) {
	runCtx, cancel := context.WithCancel(ctx)
	wf.cancel = cancel
	wf.running = true
	wf.finished = make(chan struct{})
	wf.resetSignals()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(runCtx, wf)
	}()
}

// run drives one workflow from initializing to a terminal status.
func (o *Orchestrator) run(ctx context.Context, wf *workflow) {
	o.emit(ctx, Event{Type: EventWorkflowSubmitted, WorkflowID: wf.id, Strategy: string(wf.strategy), Status: string(models.WorkflowStatusInitializing)})

	o.mu.Lock()
	wf.status = models.WorkflowStatusRunning
	wf.startedAt = o.opts.now()
	wf.endedAt = time.Time{}
	wf.effective = o.resolveStrategyLocked(wf)
	effective := wf.effective
	o.mu.Unlock()

	o.logger.Log("[orchestrator] workflow %s running: strategy=%s effective=%s", wf.id, wf.strategy, effective)
	o.emit(ctx, Event{Type: EventWorkflowStarted, WorkflowID: wf.id, Strategy: string(effective), Status: string(models.WorkflowStatusRunning)})

	switch effective {
	case models.StrategySequential:
		o.runSequential(ctx, wf)
	case models.StrategyParallel:
		o.runParallel(ctx, wf)
	case models.StrategyHybrid:
		o.runHybrid(ctx, wf)
	}

	o.finish(ctx, wf)
}

// finish settles leftovers and records the terminal status.
func (o *Orchestrator) finish(ctx context.Context, wf *workflow) {
	var blocked []string
	var reasons []string

	o.mu.Lock()
	now := o.opts.now()
	for _, id := range wf.order {
		if !wf.candidate(id) {
			continue
		}
		reason := reasonCanceled
		if ctx.Err() == nil {
			reason = reasonDependencyFailed + wf.firstUnmetDependency(id)
		}
		if wf.block(id, reason, now) {
			blocked = append(blocked, id)
			reasons = append(reasons, reason)
		}
	}

	if wf.allCompleted() {
		wf.status = models.WorkflowStatusCompleted
	} else {
		wf.status = models.WorkflowStatusFailed
	}
	wf.endedAt = now
	wf.running = false
	report := wf.report(now)
	close(wf.finished)
	o.mu.Unlock()

	for i, id := range blocked {
		o.emitBlocked(ctx, wf, []string{id}, reasons[i])
	}

	o.logger.Log("[orchestrator] workflow %s %s: %d/%d completed in %s", wf.id, report.Status,
		report.Counts[models.TaskStatusCompleted], report.Total, report.Elapsed)
	o.emit(ctx, Event{
		Type:       EventWorkflowFinished,
		WorkflowID: wf.id,
		Strategy:   string(report.EffectiveStrategy),
		Status:     string(report.Status),
		Duration:   report.Elapsed,
		Message: fmt.Sprintf("completed=%d failed=%d blocked=%d queued=%d",
			report.Counts[models.TaskStatusCompleted], report.Counts[models.TaskStatusFailed],
			report.Counts[models.TaskStatusBlocked], report.Queued),
	})
}

// Status reports a workflow. An empty ID means the most recently submitted one.
func (o *Orchestrator) Status(workflowID string) (StatusReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf, err := o.lookupLocked(workflowID)
	if err != nil {
		return StatusReport{}, err
	}
	return wf.report(o.opts.now()), nil
}

// Wait blocks until the workflow's current run finishes or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, workflowID string) (StatusReport, error) {
	o.mu.Lock()
	wf, err := o.lookupLocked(workflowID)
	if err != nil {
		o.mu.Unlock()
		return StatusReport{}, err
	}
	finished := wf.finished
	o.mu.Unlock()

	select {
	case <-finished:
	case <-ctx.Done():
		return StatusReport{}, ctx.Err()
	}
	return o.Status(wf.id)
}

// Resume re-runs every task of a finished workflow that did not complete,
// including tasks parked in the pending queue, under the workflow's strategy.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) (Ack, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return Ack{}, ErrStopped
	}
	wf, err := o.lookupLocked(workflowID)
	if err != nil {
		return Ack{}, err
	}
	if wf.running {
		return Ack{}, fmt.Errorf("%w: %s", ErrWorkflowRunning, wf.id)
	}

	rerun := 0
	for _, id := range wf.order {
		t := wf.tasks[id]
		if t.Status == models.TaskStatusCompleted {
			continue
		}
		resetTask(t)
		rerun++
	}
	wf.queue = nil
	wf.queued = make(map[string]bool)
	wf.status = models.WorkflowStatusInitializing
	o.startLocked(ctx, wf)

	o.logger.Log("[orchestrator] workflow %s resumed: %d tasks to run", wf.id, rerun)
	return Ack{WorkflowID: wf.id, Strategy: wf.strategy, TaskCount: rerun, SubmittedAt: wf.submittedAt}, nil
}

// Optimize runs the category optimizer. With no tasks given it uses the
// tasks of the named workflow.
func (o *Orchestrator) Optimize(ctx context.Context, workflowID string, tasks []*models.Task, maxIterations int) optimizer.Result {
	if len(tasks) == 0 && workflowID != "" {
		o.mu.Lock()
		if wf, ok := o.workflows[workflowID]; ok {
			for _, id := range wf.order {
				tasks = append(tasks, wf.tasks[id].Clone())
			}
		}
		o.mu.Unlock()
	}

	res := o.optimizer.Run(tasks, maxIterations)
	res.WorkflowID = workflowID

	o.logger.Log("[optimizer] workflow %s: baseline=%.4f final=%.4f sequence=%s", workflowID, res.BaselineMDL, res.FinalMDL, res.Sequence())
	o.emit(ctx, Event{
		Type:        EventOptimization,
		WorkflowID:  workflowID,
		MDL:         res.FinalMDL,
		Delta:       res.Improvement,
		Sequence:    res.Sequence(),
		Fingerprint: res.Fingerprint,
		Message:     fmt.Sprintf("baseline=%.4f final=%.4f", res.BaselineMDL, res.FinalMDL),
	})
	return res
}

// RegisterWorker adds or replaces a worker.
func (o *Orchestrator) RegisterWorker(ctx context.Context, w *models.Worker) error {
	if err := o.registry.Register(w); err != nil {
		return err
	}
	o.emit(ctx, Event{Type: EventWorkerStatus, WorkerID: w.ID, Status: string(o.registry.Get(w.ID).Status)})
	return nil
}

// SetWorkerStatus changes a worker's availability.
func (o *Orchestrator) SetWorkerStatus(ctx context.Context, workerID string, s models.WorkerStatus) error {
	if err := o.registry.SetStatus(workerID, s); err != nil {
		return err
	}
	o.emit(ctx, Event{Type: EventWorkerStatus, WorkerID: workerID, Status: string(s)})
	return nil
}

// Workers returns copies of all workers in registration order.
func (o *Orchestrator) Workers() []*models.Worker {
	return o.registry.All()
}

// CompletionLog returns the workflow's completion records in completion order.
func (o *Orchestrator) CompletionLog(workflowID string) ([]models.CompletionRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf, err := o.lookupLocked(workflowID)
	if err != nil {
		return nil, err
	}
	return append([]models.CompletionRecord(nil), wf.log...), nil
}

// PendingQueue returns IDs of tasks parked by queue failover.
func (o *Orchestrator) PendingQueue(workflowID string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf, err := o.lookupLocked(workflowID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), wf.queue...), nil
}

// Workflows returns the IDs of every submitted workflow, oldest first.
func (o *Orchestrator) Workflows() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.submitted...)
}

// Events returns a read-only channel of orchestrator events.
// The channel is closed by Stop.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEvents returns how many events were dropped because nobody was reading.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.emitter.DroppedCount()
}

// Stop cancels running workflows, waits for them and closes the event channel.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.stopped = true
		for _, wf := range o.workflows {
			if wf.running && wf.cancel != nil {
				wf.cancel()
			}
		}
		o.mu.Unlock()

		o.wg.Wait()
		o.emitter.Close()
		o.logger.Log("[orchestrator] stopped")
	})
}

func (o *Orchestrator) lookupLocked(workflowID string) (*workflow, error) {
	if workflowID == "" {
		if len(o.submitted) == 0 {
			return nil, ErrUnknownWorkflow
		}
		workflowID = o.submitted[len(o.submitted)-1]
	}
	wf, ok := o.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	return wf, nil
}

// emit stamps an event, publishes it to subscribers and forwards it to the hook.
func (o *Orchestrator) emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.opts.now()
	}
	o.emitter.Emit(ev)

	if o.hook == nil {
		return
	}
	if err := o.hook.Notify(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("[orchestrator] hook failed for %s event: %v", ev.Type, err)
	}
}
