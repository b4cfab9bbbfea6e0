// Package orchestrator coordinates workflows of dependent tasks across a pool of workers.
package orchestrator

import (
	"time"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventWorkflowSubmitted indicates a workflow was accepted.
	EventWorkflowSubmitted EventType = "workflow_submitted"
	// EventWorkflowStarted indicates the strategy began executing.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowFinished indicates the workflow reached a terminal status.
	EventWorkflowFinished EventType = "workflow_finished"
	// EventTaskStarted indicates a task attempt was dispatched to a worker.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskRetry indicates a failed attempt will be retried after backoff.
	EventTaskRetry EventType = "task_retry"
	// EventTaskFailed indicates a task failed permanently.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a task will not run because of an upstream failure or abort.
	EventTaskBlocked EventType = "task_blocked"
	// EventTaskFailover indicates a recovery strategy was applied to a task.
	EventTaskFailover EventType = "task_failover"
	// EventTaskQueued indicates a task was parked in the pending-work queue.
	EventTaskQueued EventType = "task_queued"
	// EventWorkerStatus indicates a worker was registered or changed status.
	EventWorkerStatus EventType = "worker_status"
	// EventOptimization indicates an optimizer run finished.
	EventOptimization EventType = "optimization"
)

// Event represents an event emitted by the orchestrator.
// Events feed the TUI, the audit store, metrics and the event bus.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Type is the kind of event.
	Type EventType `json:"type"`
	// WorkflowID is the ID of the related workflow, if applicable.
	WorkflowID string `json:"workflow_id,omitempty"`
	// TaskID is the ID of the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// TaskType is the type of the related task, if applicable.
	TaskType models.TaskType `json:"task_type,omitempty"`
	// WorkerID is the ID of the related worker, if applicable.
	WorkerID string `json:"worker_id,omitempty"`
	// Attempt is the attempt number for task events.
	Attempt int `json:"attempt,omitempty"`
	// Status carries the task, workflow or worker status the event reports.
	Status string `json:"status,omitempty"`
	// Strategy is the execution or failover strategy involved.
	Strategy string `json:"strategy,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Error contains error details for failure events.
	Error string `json:"error,omitempty"`
	// TokensUsed is the token usage reported by the worker.
	TokensUsed int64 `json:"tokens_used,omitempty"`
	// Duration is the elapsed time of the task or workflow.
	Duration time.Duration `json:"duration,omitempty"`
	// MDL is the final description length of an optimization.
	MDL float64 `json:"mdl,omitempty"`
	// Delta is the MDL improvement of an optimization.
	Delta float64 `json:"delta,omitempty"`
	// Sequence is the operator sequence of an optimization, e.g. "FFBU".
	Sequence string `json:"sequence,omitempty"`
	// Fingerprint is the blake3 hash of an optimization's best configuration.
	Fingerprint string `json:"fingerprint,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
