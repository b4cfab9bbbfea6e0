package models

import "time"

// Strategy selects how a workflow's tasks are executed.
type Strategy string

const (
	// StrategySequential runs tasks one at a time in topological order.
	StrategySequential Strategy = "sequential"
	// StrategyParallel runs ready tasks in concurrent batches.
	StrategyParallel Strategy = "parallel"
	// StrategyHybrid runs independent tasks concurrently, then dependent tasks one by one.
	StrategyHybrid Strategy = "hybrid"
	// StrategyAdaptive picks sequential or parallel from the number of ready tasks.
	StrategyAdaptive Strategy = "adaptive"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyHybrid, StrategyAdaptive:
		return true
	default:
		return false
	}
}

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	// WorkflowStatusInitializing indicates the workflow was accepted but has not started.
	WorkflowStatusInitializing WorkflowStatus = "initializing"
	// WorkflowStatusRunning indicates the strategy is executing tasks.
	WorkflowStatusRunning WorkflowStatus = "running"
	// WorkflowStatusCompleted indicates every task completed.
	WorkflowStatusCompleted WorkflowStatus = "completed"
	// WorkflowStatusFailed indicates at least one task did not complete.
	WorkflowStatusFailed WorkflowStatus = "failed"
)

// Terminal returns true for completed and failed.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// CompletionRecord is one entry of a workflow's completion log.
type CompletionRecord struct {
	TaskID     string        `json:"task_id"`
	WorkerID   string        `json:"worker_id"`
	Duration   time.Duration `json:"duration"`
	TokenUsage int64         `json:"token_usage"`
}
