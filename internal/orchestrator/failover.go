package orchestrator

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// FailoverStrategy is the recovery applied to a task whose worker failed.
type FailoverStrategy string

const (
	// FailoverRedirect reassigns the task to the best other eligible worker.
	FailoverRedirect FailoverStrategy = "redirect"
	// FailoverRetry resets the attempt count.
	FailoverRetry FailoverStrategy = "retry"
	// FailoverQueue parks the task in the workflow's pending-work queue.
	FailoverQueue FailoverStrategy = "queue"
	// FailoverEscalate raises the task's priority one step.
	FailoverEscalate FailoverStrategy = "escalate"
)

// Valid returns true if the strategy is a known value.
func (s FailoverStrategy) Valid() bool {
	switch s {
	case FailoverRedirect, FailoverRetry, FailoverQueue, FailoverEscalate:
		return true
	default:
		return false
	}
}

// RecoveryCounts reports how many tasks a failover recovered.
type RecoveryCounts struct {
	Recovered   int `json:"recovered"`
	Unrecovered int `json:"unrecovered"`
}

// Failover applies one recovery strategy to each listed task after workerID failed.
// It never fails: unknown, running or completed tasks, an invalid strategy and
// redirects with no other eligible worker all count as unrecovered.
// Recovered tasks are left pending; Resume runs them again.
func (o *Orchestrator) Failover(ctx context.Context, workerID string, taskIDs []string, strategy FailoverStrategy) RecoveryCounts {
	var counts RecoveryCounts
	var events []Event

	o.mu.Lock()
	for _, id := range taskIDs {
		wf, t := o.findTaskLocked(id)
		if !strategy.Valid() || t == nil || t.Claimed ||
			t.Status == models.TaskStatusRunning || t.Status == models.TaskStatusCompleted {
			counts.Unrecovered++
			debugLog("[failover] task %s: not recoverable (strategy=%s)", id, strategy)
			continue
		}
		if o.applyFailoverLocked(wf, t, workerID, strategy) {
			counts.Recovered++
			events = append(events, o.failoverEvent(wf, t, workerID, strategy))
		} else {
			counts.Unrecovered++
		}
	}
	o.mu.Unlock()

	for _, ev := range events {
		o.emit(ctx, ev)
	}
	debugLog("[failover] worker %s: %s recovered=%d unrecovered=%d", workerID, strategy, counts.Recovered, counts.Unrecovered)
	return counts
}

// applyFailoverLocked mutates t according to strategy. Caller holds o.mu.
func (o *Orchestrator) applyFailoverLocked(wf *workflow, t *models.Task, failedWorker string, strategy FailoverStrategy) bool {
	switch strategy {
	case FailoverRedirect:
		w, err := o.registry.SelectExcluding(t, failedWorker)
		if err != nil {
			debugLog("[failover] task %s: redirect away from %s failed: %v", t.ID, failedWorker, err)
			return false
		}
		t.AssignedTo = w.ID
		wf.avoid[t.ID] = failedWorker
	case FailoverRetry:
		t.Attempts = 0
	case FailoverQueue:
		if !wf.queued[t.ID] {
			wf.queued[t.ID] = true
			wf.queue = append(wf.queue, t.ID)
		}
		if !t.Claimed {
			// Nothing will dispatch it this run; release anything waiting on it.
			wf.settle(t.ID)
		}
	case FailoverEscalate:
		t.Priority = t.Priority.Escalate()
	default:
		return false
	}
	t.Status = models.TaskStatusPending
	t.BlockedReason = ""
	t.CompletedAt = nil
	return true
}

func (o *Orchestrator) failoverEvent(wf *workflow, t *models.Task, workerID string, strategy FailoverStrategy) Event {
	ev := Event{
		Type:       EventTaskFailover,
		WorkflowID: wf.id,
		TaskID:     t.ID,
		TaskType:   t.Type,
		WorkerID:   workerID,
		Strategy:   string(strategy),
		Status:     string(t.Status),
		Message:    fmt.Sprintf("priority=%s assigned=%s", t.Priority, t.AssignedTo),
	}
	if strategy == FailoverQueue {
		ev.Type = EventTaskQueued
	}
	return ev
}

// findTaskLocked looks a task up in the most recently submitted workflow first.
func (o *Orchestrator) findTaskLocked(taskID string) (*workflow, *models.Task) {
	for i := len(o.submitted) - 1; i >= 0; i-- {
		wf := o.workflows[o.submitted[i]]
		if t, ok := wf.tasks[taskID]; ok {
			return wf, t
		}
	}
	return nil, nil
}
