package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/qforge/internal/graph"
	"github.com/ShayCichocki/qforge/pkg/models"
)

var (
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNoWorkerAvailable is the sentinel wrapped by NoWorkerAvailableError.
	ErrNoWorkerAvailable = errors.New("no worker available")
	// ErrWorkerExecution is the sentinel wrapped by WorkerExecutionError.
	ErrWorkerExecution = errors.New("worker execution failed")
	// ErrUnknownWorkflow is returned for workflow IDs the orchestrator has never seen.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrWorkflowExists is returned when submitting a workflow ID that is already in use.
	ErrWorkflowExists = errors.New("workflow already exists")
	// ErrWorkflowRunning is returned when resuming a workflow that has not finished.
	ErrWorkflowRunning = errors.New("workflow is still running")
	// ErrStopped is returned after Stop has been called.
	ErrStopped = errors.New("orchestrator stopped")
)

// ValidationError reports malformed input rejected before a workflow starts.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// CyclicDependencyError reports a dependency cycle found at submit time.
type CyclicDependencyError struct {
	Path []string
	Err  error
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %v", e.Err)
}

func (e *CyclicDependencyError) Unwrap() error { return e.Err }

// NoWorkerAvailableError is scoped to one task: no registered worker is
// available with the task's capability.
type NoWorkerAvailableError struct {
	TaskID   string
	TaskType models.TaskType
}

func (e *NoWorkerAvailableError) Error() string {
	return fmt.Sprintf("%s for task %s (type %s)", ErrNoWorkerAvailable, e.TaskID, e.TaskType)
}

// Is matches ErrNoWorkerAvailable.
func (e *NoWorkerAvailableError) Is(target error) bool { return target == ErrNoWorkerAvailable }

// WorkerExecutionError wraps a failure returned by a worker call.
type WorkerExecutionError struct {
	TaskID   string
	WorkerID string
	Attempt  int
	Err      error
}

func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("task %s on worker %s (attempt %d): %v", e.TaskID, e.WorkerID, e.Attempt, e.Err)
}

// Is matches ErrWorkerExecution.
func (e *WorkerExecutionError) Is(target error) bool { return target == ErrWorkerExecution }

func (e *WorkerExecutionError) Unwrap() error { return e.Err }

// wrapGraphError turns a graph build failure into the submit-time error taxonomy.
func wrapGraphError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrCycleDetected) {
		ce := &CyclicDependencyError{Err: err}
		var path *graph.CycleError
		if errors.As(err, &path) {
			ce.Path = path.Path
		}
		return ce
	}
	field := "tasks"
	switch {
	case errors.Is(err, graph.ErrEmptyID), errors.Is(err, graph.ErrDuplicateID):
		field = "id"
	case errors.Is(err, graph.ErrUnknownDependency):
		field = "depends_on"
	}
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}
