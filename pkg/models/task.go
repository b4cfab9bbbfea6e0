package models

import "time"

// TaskType identifies the kind of work a task represents.
// The set is closed: every switch over TaskType handles all five values.
type TaskType string

const (
	// TaskTypePlanning is for breaking work down and sequencing it.
	TaskTypePlanning TaskType = "planning"
	// TaskTypeImplementation is for producing code or artifacts.
	TaskTypeImplementation TaskType = "implementation"
	// TaskTypeKnowledge is for research and knowledge capture.
	TaskTypeKnowledge TaskType = "knowledge"
	// TaskTypeAnalysis is for review and evaluation work.
	TaskTypeAnalysis TaskType = "analysis"
	// TaskTypeCoordination is for hand-offs between other tasks.
	TaskTypeCoordination TaskType = "coordination"
)

// TaskTypes returns every task type in declaration order.
func TaskTypes() []TaskType {
	return []TaskType{
		TaskTypePlanning,
		TaskTypeImplementation,
		TaskTypeKnowledge,
		TaskTypeAnalysis,
		TaskTypeCoordination,
	}
}

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypePlanning, TaskTypeImplementation, TaskTypeKnowledge,
		TaskTypeAnalysis, TaskTypeCoordination:
		return true
	default:
		return false
	}
}

// Priority orders tasks by urgency.
type Priority string

const (
	// PriorityLow is for work that can wait.
	PriorityLow Priority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityHigh is for work on the critical path.
	PriorityHigh Priority = "high"
	// PriorityCritical is for work that blocks everything else.
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Rank returns the ordinal of the priority, low = 0 through critical = 3.
// Unknown priorities rank with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// Escalate returns the priority one step toward critical.
// Anything below high becomes high; high becomes critical.
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityHigh, PriorityCritical:
		return PriorityCritical
	default:
		return PriorityHigh
	}
}

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being executed by a worker.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed permanently.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task cannot run because a dependency did not complete.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further execution happens for the task in the current run.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusBlocked
}

// DefaultMaxAttempts is the number of attempts a task gets before failover.
const DefaultMaxAttempts = 3

// Task represents a unit of work in a workflow.
type Task struct {
	// ID is the unique identifier for this task within its workflow.
	ID string `json:"id" yaml:"id"`
	// Type is the kind of work, used for worker matching and categorization.
	Type TaskType `json:"type" yaml:"type"`
	// Priority is the urgency of the task.
	Priority Priority `json:"priority" yaml:"priority"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Input is the payload handed to the worker.
	Input map[string]string `json:"input,omitempty" yaml:"input,omitempty"`
	// EstimatedTokens is the expected token cost. Zero means unknown.
	EstimatedTokens int `json:"estimated_tokens,omitempty" yaml:"estimated_tokens,omitempty"`
	// MaxAttempts bounds in-place retries. Zero means DefaultMaxAttempts.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"-"`
	// AssignedTo is the ID of the worker executing or last assigned to this task.
	AssignedTo string `json:"assigned_to,omitempty" yaml:"-"`
	// Attempts is the number of attempts made in the current round.
	Attempts int `json:"attempts" yaml:"-"`
	// FailoverRounds counts how many times failover granted a fresh round.
	FailoverRounds int `json:"failover_rounds,omitempty" yaml:"-"`
	// Claimed is set before dispatch so the task is never executed twice concurrently.
	Claimed bool `json:"-" yaml:"-"`
	// Result is the worker output on success.
	Result string `json:"result,omitempty" yaml:"-"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty" yaml:"-"`
	// BlockedReason explains why a blocked task did not run.
	BlockedReason string `json:"blocked_reason,omitempty" yaml:"-"`
	// TokensUsed is the token usage reported by the worker.
	TokensUsed int64 `json:"tokens_used,omitempty" yaml:"-"`
	// StartedAt is when the latest attempt began.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"-"`
	// CompletedAt is when the task reached completed or failed.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
}

// EffectiveMaxAttempts returns MaxAttempts, or DefaultMaxAttempts when unset.
func (t *Task) EffectiveMaxAttempts() int {
	if t.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return t.MaxAttempts
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Input != nil {
		c.Input = make(map[string]string, len(t.Input))
		for k, v := range t.Input {
			c.Input[k] = v
		}
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.CompletedAt != nil {
		e := *t.CompletedAt
		c.CompletedAt = &e
	}
	return &c
}
