package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// outcome is how a task left executeTask.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeNoWorker
	outcomeQueued
	outcomeCanceled
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeFailed:
		return "failed"
	case outcomeNoWorker:
		return "no_worker"
	case outcomeQueued:
		return "queued"
	case outcomeCanceled:
		return "canceled"
	default:
		return "skipped"
	}
}

// attemptResult is how a round of attempts ended.
type attemptResult int

const (
	attemptsSucceeded attemptResult = iota
	attemptsExhausted
	attemptsNoWorker
	attemptsCanceled
)

// executeTask claims a task and drives it to a settled state: completed,
// permanently failed, or parked in the queue. A task already claimed or no
// longer pending is skipped.
func (o *Orchestrator) executeTask(ctx context.Context, wf *workflow, id string) outcome {
	o.mu.Lock()
	if !wf.candidate(id) {
		o.mu.Unlock()
		return outcomeSkipped
	}
	t := wf.tasks[id]
	t.Claimed = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		t.Claimed = false
		wf.settle(id)
		o.mu.Unlock()
	}()

	for round := 0; ; round++ {
		res, lastWorker, lastErr := o.runAttempts(ctx, wf, t)
		switch res {
		case attemptsSucceeded:
			return outcomeCompleted
		case attemptsNoWorker:
			o.failTask(ctx, wf, t, lastErr)
			return outcomeNoWorker
		case attemptsCanceled:
			o.failTask(ctx, wf, t, lastErr)
			return outcomeCanceled
		}

		strategy := o.opts.failoverStrategy
		if strategy != FailoverQueue && round >= o.opts.failoverRounds {
			o.failTask(ctx, wf, t, lastErr)
			return outcomeFailed
		}

		o.mu.Lock()
		recovered := o.applyFailoverLocked(wf, t, lastWorker, strategy)
		if recovered && strategy != FailoverQueue {
			// Fresh attempt budget for the next round.
			t.Attempts = 0
			t.FailoverRounds++
		}
		ev := o.failoverEvent(wf, t, lastWorker, strategy)
		o.mu.Unlock()

		if !recovered {
			o.failTask(ctx, wf, t, lastErr)
			return outcomeFailed
		}
		o.emit(ctx, ev)
		if strategy == FailoverQueue {
			debugLog("[failover] task %s parked in pending queue of %s", t.ID, wf.id)
			return outcomeQueued
		}
		debugLog("[failover] task %s: %s recovered, round %d", t.ID, strategy, round+1)
	}
}

// runAttempts is the bounded retry loop for one round. Attempts never exceed
// the task's budget; exhausting it hands control back for failover.
func (o *Orchestrator) runAttempts(ctx context.Context, wf *workflow, t *models.Task) (attemptResult, string, error) {
	var lastWorker string
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return attemptsCanceled, lastWorker, err
		}

		o.mu.Lock()
		if t.Attempts >= t.EffectiveMaxAttempts() {
			o.mu.Unlock()
			return attemptsExhausted, lastWorker, lastErr
		}
		t.Attempts++
		attempt := t.Attempts
		now := o.opts.now()
		t.Status = models.TaskStatusRunning
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
		avoid := wf.avoid[t.ID]
		o.mu.Unlock()

		w, delta, err := o.registry.acquire(t, o.opts.loadPerTask, avoid)
		if err != nil {
			debugLog("[orchestrator] task %s: %v", t.ID, err)
			return attemptsNoWorker, lastWorker, err
		}

		o.mu.Lock()
		t.AssignedTo = w.ID
		snapshot := t.Clone()
		o.mu.Unlock()

		o.emit(ctx, Event{
			Type:       EventTaskStarted,
			WorkflowID: wf.id,
			TaskID:     t.ID,
			TaskType:   t.Type,
			WorkerID:   w.ID,
			Attempt:    attempt,
			Status:     string(models.TaskStatusRunning),
		})

		res, callErr := o.caller.Call(ctx, w, snapshot)
		o.registry.release(w.ID, delta)
		finished := o.opts.now()

		if callErr == nil && res != nil {
			o.completeTask(ctx, wf, t, w, res.Output, res.TokenUsage, finished.Sub(now), finished)
			return attemptsSucceeded, w.ID, nil
		}
		if callErr == nil {
			callErr = errors.New("worker returned no result")
		}

		lastWorker = w.ID
		lastErr = &WorkerExecutionError{TaskID: t.ID, WorkerID: w.ID, Attempt: attempt, Err: callErr}

		o.mu.Lock()
		t.Status = models.TaskStatusPending
		t.Error = lastErr.Error()
		maxAttempts := t.EffectiveMaxAttempts()
		o.mu.Unlock()

		if ctx.Err() != nil {
			return attemptsCanceled, lastWorker, lastErr
		}
		if attempt >= maxAttempts {
			o.logger.Warn("[retry] task %s exhausted %d attempts: %v", t.ID, attempt, callErr)
			return attemptsExhausted, lastWorker, lastErr
		}

		wait := o.backoff(attempt)
		o.emit(ctx, Event{
			Type:       EventTaskRetry,
			WorkflowID: wf.id,
			TaskID:     t.ID,
			TaskType:   t.Type,
			WorkerID:   w.ID,
			Attempt:    attempt,
			Error:      callErr.Error(),
			Duration:   wait,
		})
		debugLog("[retry] task %s attempt %d/%d failed on %s, waiting %s: %v", t.ID, attempt, maxAttempts, w.ID, wait, callErr)
		if !o.opts.sleep(ctx, wait) {
			return attemptsCanceled, lastWorker, ctx.Err()
		}
	}
}

// backoff is 2^attempt backoff units.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return o.opts.backoffUnit * time.Duration(1<<uint(attempt))
}

func (o *Orchestrator) completeTask(ctx context.Context, wf *workflow, t *models.Task, w *models.Worker, output string, tokens int64, took time.Duration, at time.Time) {
	o.mu.Lock()
	t.Status = models.TaskStatusCompleted
	t.Result = output
	t.Error = ""
	t.TokensUsed += tokens
	t.CompletedAt = &at
	wf.log = append(wf.log, models.CompletionRecord{
		TaskID:     t.ID,
		WorkerID:   w.ID,
		Duration:   took,
		TokenUsage: tokens,
	})
	attempt := t.Attempts
	o.mu.Unlock()

	o.emit(ctx, Event{
		Type:       EventTaskCompleted,
		WorkflowID: wf.id,
		TaskID:     t.ID,
		TaskType:   t.Type,
		WorkerID:   w.ID,
		Attempt:    attempt,
		Status:     string(models.TaskStatusCompleted),
		TokensUsed: tokens,
		Duration:   took,
	})
}

func (o *Orchestrator) failTask(ctx context.Context, wf *workflow, t *models.Task, cause error) {
	now := o.opts.now()
	o.mu.Lock()
	t.Status = models.TaskStatusFailed
	if cause != nil {
		t.Error = cause.Error()
	}
	t.CompletedAt = &now
	ev := Event{
		Type:       EventTaskFailed,
		WorkflowID: wf.id,
		TaskID:     t.ID,
		TaskType:   t.Type,
		WorkerID:   t.AssignedTo,
		Attempt:    t.Attempts,
		Status:     string(models.TaskStatusFailed),
		Error:      t.Error,
	}
	o.mu.Unlock()

	o.emit(ctx, ev)
}
