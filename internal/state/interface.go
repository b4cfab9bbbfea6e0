package state

import (
	"io"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// AuditReader answers the history queries behind `qforge status`.
type AuditReader interface {
	GetWorkflow(id string) (*WorkflowRecord, error)
	RecentWorkflows(limit int) ([]WorkflowRecord, error)
	RecentOptimizations(limit int) ([]OptimizationRecord, error)
	WorkflowEvents(workflowID string) ([]orchestrator.Event, error)
}

// AuditStore records orchestrator events and serves them back.
type AuditStore interface {
	io.Closer
	Migrator
	orchestrator.Hook
	AuditReader
}

// Compile-time verification that DB implements all interfaces.
var (
	_ AuditStore        = (*DB)(nil)
	_ Migrator          = (*DB)(nil)
	_ AuditReader       = (*DB)(nil)
	_ orchestrator.Hook = (*DB)(nil)
)
