package orchestrator

import (
	"context"
	"sync"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// adaptiveParallelThreshold is the number of ready root tasks above which
// adaptive runs in parallel.
const adaptiveParallelThreshold = 2

// resolveStrategyLocked maps adaptive onto sequential or parallel.
func (o *Orchestrator) resolveStrategyLocked(wf *workflow) models.Strategy {
	if wf.strategy != models.StrategyAdaptive {
		return wf.strategy
	}
	ready := 0
	for _, id := range wf.graph.Roots() {
		if wf.candidate(id) {
			ready++
		}
	}
	if ready <= adaptiveParallelThreshold {
		return models.StrategySequential
	}
	return models.StrategyParallel
}

// runSequential executes tasks one at a time in topological order.
func (o *Orchestrator) runSequential(ctx context.Context, wf *workflow) {
	order, err := wf.graph.TopologicalSort()
	if err != nil {
		o.logger.Warn("[orchestrator] workflow %s: %v", wf.id, err)
		return
	}
	for _, id := range order {
		if ctx.Err() != nil {
			o.blockRemaining(ctx, wf, reasonCanceled)
			return
		}
		if o.blockIfUnmet(ctx, wf, id) {
			continue
		}
		if out := o.executeTask(ctx, wf, id); out != outcomeCompleted && out != outcomeSkipped {
			o.blockDependents(ctx, wf, id)
		}
	}
}

// runParallel launches every ready task as a batch, waits for the batch and
// rescans until nothing is ready.
func (o *Orchestrator) runParallel(ctx context.Context, wf *workflow) {
	for {
		if ctx.Err() != nil {
			o.blockRemaining(ctx, wf, reasonCanceled)
			return
		}

		o.mu.Lock()
		batch := wf.graph.Ready(wf.candidate, wf.completed)
		o.mu.Unlock()
		if len(batch) == 0 {
			return
		}

		if !o.runBatch(ctx, wf, batch) {
			return
		}
	}
}

// runHybrid runs root tasks concurrently, then dependency-bearing tasks one
// by one, each waiting on its dependencies' completion signals.
func (o *Orchestrator) runHybrid(ctx context.Context, wf *workflow) {
	o.mu.Lock()
	var roots []string
	for _, id := range wf.graph.Roots() {
		if wf.candidate(id) {
			roots = append(roots, id)
		}
	}
	o.mu.Unlock()

	if len(roots) > 0 && !o.runBatch(ctx, wf, roots) {
		return
	}

	order, err := wf.graph.TopologicalSort()
	if err != nil {
		o.logger.Warn("[orchestrator] workflow %s: %v", wf.id, err)
		return
	}
	for _, id := range order {
		deps := wf.graph.Dependencies(id)
		if len(deps) == 0 {
			continue
		}
		if ctx.Err() != nil {
			o.blockRemaining(ctx, wf, reasonCanceled)
			return
		}
		if !o.waitFor(ctx, wf, deps) {
			o.blockRemaining(ctx, wf, reasonCanceled)
			return
		}
		if o.blockIfUnmet(ctx, wf, id) {
			continue
		}
		if out := o.executeTask(ctx, wf, id); out != outcomeCompleted && out != outcomeSkipped {
			o.blockDependents(ctx, wf, id)
		}
	}
}

// runBatch executes ids concurrently and joins them. If every task in the
// batch failed for lack of a worker the workflow is aborted and false is
// returned.
func (o *Orchestrator) runBatch(ctx context.Context, wf *workflow, ids []string) bool {
	outcomes := make([]outcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = o.executeTask(ctx, wf, id)
		}(i, id)
	}
	wg.Wait()

	noWorker := 0
	for _, out := range outcomes {
		if out == outcomeNoWorker {
			noWorker++
		}
	}
	if noWorker == len(ids) {
		o.logger.Warn("[orchestrator] workflow %s: no worker for any of %d ready tasks, aborting", wf.id, len(ids))
		o.blockRemaining(ctx, wf, reasonWorkflowAborted)
		return false
	}

	for i, out := range outcomes {
		if out != outcomeCompleted && out != outcomeSkipped {
			o.blockDependents(ctx, wf, ids[i])
		}
	}
	return true
}

// waitFor blocks until every dependency has settled. Returns false if ctx ended first.
func (o *Orchestrator) waitFor(ctx context.Context, wf *workflow, deps []string) bool {
	for _, dep := range deps {
		o.mu.Lock()
		ch := wf.done[dep]
		o.mu.Unlock()
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// blockIfUnmet blocks id when one of its dependencies did not complete.
func (o *Orchestrator) blockIfUnmet(ctx context.Context, wf *workflow, id string) bool {
	o.mu.Lock()
	if !wf.candidate(id) {
		o.mu.Unlock()
		return true
	}
	dep := wf.firstUnmetDependency(id)
	if dep == "" {
		o.mu.Unlock()
		return false
	}
	blocked := wf.block(id, reasonDependencyFailed+dep, o.opts.now())
	o.mu.Unlock()

	if blocked {
		o.emitBlocked(ctx, wf, []string{id}, reasonDependencyFailed+dep)
	}
	return true
}

// blockDependents blocks everything downstream of a task that did not complete.
func (o *Orchestrator) blockDependents(ctx context.Context, wf *workflow, id string) {
	reason := reasonDependencyFailed + id
	var blocked []string

	o.mu.Lock()
	now := o.opts.now()
	for _, dep := range wf.graph.TransitiveDependents(id) {
		if wf.block(dep, reason, now) {
			blocked = append(blocked, dep)
		}
	}
	o.mu.Unlock()

	o.emitBlocked(ctx, wf, blocked, reason)
}

// blockRemaining blocks every task that is still waiting to be dispatched.
func (o *Orchestrator) blockRemaining(ctx context.Context, wf *workflow, reason string) {
	var blocked []string

	o.mu.Lock()
	now := o.opts.now()
	for _, id := range wf.order {
		if wf.block(id, reason, now) {
			blocked = append(blocked, id)
		}
	}
	o.mu.Unlock()

	o.emitBlocked(ctx, wf, blocked, reason)
}

func (o *Orchestrator) emitBlocked(ctx context.Context, wf *workflow, ids []string, reason string) {
	for _, id := range ids {
		debugLog("[orchestrator] task %s blocked: %s", id, reason)
		o.emit(ctx, Event{
			Type:       EventTaskBlocked,
			WorkflowID: wf.id,
			TaskID:     id,
			Status:     string(models.TaskStatusBlocked),
			Message:    reason,
		})
	}
}
