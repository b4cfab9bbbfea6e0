package models

// WorkerStatus represents the availability of a worker.
type WorkerStatus string

const (
	// WorkerStatusAvailable indicates the worker accepts new tasks.
	WorkerStatusAvailable WorkerStatus = "available"
	// WorkerStatusBusy indicates the worker is saturated and accepts nothing new.
	WorkerStatusBusy WorkerStatus = "busy"
	// WorkerStatusOffline indicates the worker cannot be reached.
	WorkerStatusOffline WorkerStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusAvailable, WorkerStatusBusy, WorkerStatusOffline:
		return true
	default:
		return false
	}
}

// Worker is an external capability provider that executes tasks.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id" mapstructure:"id" yaml:"id"`
	// Capabilities lists the task types this worker can execute.
	Capabilities []TaskType `json:"capabilities" mapstructure:"capabilities" yaml:"capabilities"`
	// Specialization is the task type this worker is best at.
	Specialization TaskType `json:"specialization,omitempty" mapstructure:"specialization" yaml:"specialization,omitempty"`
	// Status is the current availability.
	Status WorkerStatus `json:"status" mapstructure:"status" yaml:"status,omitempty"`
	// Load is the current utilisation in [0,1].
	Load float64 `json:"load" mapstructure:"load" yaml:"load,omitempty"`
	// Performance is the historical quality score in [0,1].
	Performance float64 `json:"performance" mapstructure:"performance" yaml:"performance,omitempty"`
	// CostEfficiency is the relative cheapness in [0,1].
	CostEfficiency float64 `json:"cost_efficiency" mapstructure:"cost_efficiency" yaml:"cost_efficiency,omitempty"`
	// Model optionally names the backing model for API-backed callers.
	Model string `json:"model,omitempty" mapstructure:"model" yaml:"model,omitempty"`
}

// Can returns true if the worker lists the task type among its capabilities.
func (w *Worker) Can(t TaskType) bool {
	for _, c := range w.Capabilities {
		if c == t {
			return true
		}
	}
	return false
}

// Clone returns a copy of the worker with its own capability slice.
func (w *Worker) Clone() *Worker {
	c := *w
	c.Capabilities = append([]TaskType(nil), w.Capabilities...)
	return &c
}
