package orchestrator

import (
	"context"
	"time"

	"github.com/ShayCichocki/qforge/internal/graph"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// Blocked-reason values recorded on tasks that never ran.
const (
	reasonDependencyFailed = "dependency_failed:"
	reasonWorkflowAborted  = "workflow_aborted"
	reasonCanceled         = "canceled"
)

// workflow is the orchestrator-owned state of one submission.
// Every field is guarded by Orchestrator.mu.
type workflow struct {
	id          string
	strategy    models.Strategy
	effective   models.Strategy
	status      models.WorkflowStatus
	submittedAt time.Time
	startedAt   time.Time
	endedAt     time.Time

	order []string
	tasks map[string]*models.Task
	graph *graph.DependencyGraph

	log    []models.CompletionRecord
	queue  []string
	queued map[string]bool
	// avoid records the worker a redirected task must not return to.
	avoid map[string]string

	// done holds one channel per task, closed once the task settles in this run.
	done     map[string]chan struct{}
	finished chan struct{}
	running  bool
	cancel   context.CancelFunc
}

func newWorkflow(id string, strategy models.Strategy, tasks []*models.Task, g *graph.DependencyGraph, now time.Time) *workflow {
	wf := &workflow{
		id:          id,
		strategy:    strategy,
		status:      models.WorkflowStatusInitializing,
		submittedAt: now,
		tasks:       make(map[string]*models.Task, len(tasks)),
		graph:       g,
		queued:      make(map[string]bool),
		avoid:       make(map[string]string),
		finished:    make(chan struct{}),
	}
	for _, t := range tasks {
		wf.order = append(wf.order, t.ID)
		wf.tasks[t.ID] = t
	}
	return wf
}

// resetSignals prepares completion channels for a new run. Completed tasks
// start settled.
func (wf *workflow) resetSignals() {
	wf.done = make(map[string]chan struct{}, len(wf.order))
	for _, id := range wf.order {
		ch := make(chan struct{})
		if wf.tasks[id].Status == models.TaskStatusCompleted {
			close(ch)
		}
		wf.done[id] = ch
	}
}

// settle closes the task's completion channel once.
func (wf *workflow) settle(id string) {
	ch, ok := wf.done[id]
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// candidate reports whether a task may be dispatched now.
func (wf *workflow) candidate(id string) bool {
	t := wf.tasks[id]
	return t != nil && t.Status == models.TaskStatusPending && !t.Claimed && !wf.queued[id]
}

func (wf *workflow) completed(id string) bool {
	t := wf.tasks[id]
	return t != nil && t.Status == models.TaskStatusCompleted
}

// firstUnmetDependency returns the first dependency that has not completed.
func (wf *workflow) firstUnmetDependency(id string) string {
	for _, dep := range wf.graph.Dependencies(id) {
		if !wf.completed(dep) {
			return dep
		}
	}
	return ""
}

// block marks a dispatchable task blocked and settles it. Returns false if the
// task was not dispatchable.
func (wf *workflow) block(id, reason string, now time.Time) bool {
	if !wf.candidate(id) {
		return false
	}
	t := wf.tasks[id]
	t.Status = models.TaskStatusBlocked
	t.BlockedReason = reason
	t.CompletedAt = &now
	wf.settle(id)
	return true
}

func (wf *workflow) allCompleted() bool {
	for _, id := range wf.order {
		if !wf.completed(id) {
			return false
		}
	}
	return true
}

func (wf *workflow) report(now time.Time) StatusReport {
	r := StatusReport{
		WorkflowID:        wf.id,
		Status:            wf.status,
		Strategy:          wf.strategy,
		EffectiveStrategy: wf.effective,
		SubmittedAt:       wf.submittedAt,
		StartedAt:         wf.startedAt,
		EndedAt:           wf.endedAt,
		Counts:            make(map[models.TaskStatus]int, 5),
		Queued:            len(wf.queue),
		Total:             len(wf.order),
	}
	terminal := 0
	for _, id := range wf.order {
		t := wf.tasks[id]
		r.Counts[t.Status]++
		if t.Status.Terminal() {
			terminal++
		}
		r.Tasks = append(r.Tasks, t.Clone())
	}
	if r.Total > 0 {
		r.Progress = float64(terminal) / float64(r.Total)
	}
	switch {
	case !wf.endedAt.IsZero():
		r.Elapsed = wf.endedAt.Sub(wf.startedAt)
	case !wf.startedAt.IsZero():
		r.Elapsed = now.Sub(wf.startedAt)
	}
	return r
}

// StatusReport is a point-in-time view of a workflow.
type StatusReport struct {
	WorkflowID        string                    `json:"workflow_id"`
	Status            models.WorkflowStatus     `json:"status"`
	Strategy          models.Strategy           `json:"strategy"`
	EffectiveStrategy models.Strategy           `json:"effective_strategy,omitempty"`
	Progress          float64                   `json:"progress"`
	Counts            map[models.TaskStatus]int `json:"counts"`
	Total             int                       `json:"total"`
	Queued            int                       `json:"queued"`
	Elapsed           time.Duration             `json:"elapsed"`
	SubmittedAt       time.Time                 `json:"submitted_at"`
	StartedAt         time.Time                 `json:"started_at,omitempty"`
	EndedAt           time.Time                 `json:"ended_at,omitempty"`
	Tasks             []*models.Task            `json:"tasks"`
}

// Ack acknowledges an accepted submission.
type Ack struct {
	WorkflowID  string          `json:"workflow_id"`
	Strategy    models.Strategy `json:"strategy"`
	TaskCount   int             `json:"task_count"`
	SubmittedAt time.Time       `json:"submitted_at"`
}
