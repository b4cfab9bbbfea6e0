package orchestrator

import (
	"fmt"
	"sync"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// WorkerRegistry tracks workers in registration order.
// Returned workers are copies; mutate through the registry.
type WorkerRegistry struct {
	mu      sync.RWMutex
	order   []string
	workers map[string]*models.Worker
}

// NewWorkerRegistry creates an empty registry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{workers: make(map[string]*models.Worker)}
}

// Register adds a worker, or replaces one with the same ID in place.
func (r *WorkerRegistry) Register(w *models.Worker) error {
	if w == nil || w.ID == "" {
		return &ValidationError{Field: "worker.id", Reason: "must not be empty"}
	}
	if w.Status == "" {
		w = w.Clone()
		w.Status = models.WorkerStatusAvailable
	}
	if !w.Status.Valid() {
		return &ValidationError{Field: "worker.status", Reason: fmt.Sprintf("unknown status %q", w.Status)}
	}
	for _, c := range w.Capabilities {
		if !c.Valid() {
			return &ValidationError{Field: "worker.capabilities", Reason: fmt.Sprintf("unknown task type %q", c)}
		}
	}

	c := w.Clone()
	c.Load = clamp01(c.Load)
	c.Performance = clamp01(c.Performance)
	c.CostEfficiency = clamp01(c.CostEfficiency)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.workers[c.ID] = c
	return nil
}

// SetStatus changes a worker's status.
func (r *WorkerRegistry) SetStatus(id string, s models.WorkerStatus) error {
	if !s.Valid() {
		return &ValidationError{Field: "worker.status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("worker %s: not registered", id)
	}
	w.Status = s
	return nil
}

// Get returns a copy of the worker, or nil.
func (r *WorkerRegistry) Get(id string) *models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.workers[id]; ok {
		return w.Clone()
	}
	return nil
}

// All returns copies of every worker in registration order.
func (r *WorkerRegistry) All() []*models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Worker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workers[id].Clone())
	}
	return out
}

// Select returns a copy of the best eligible worker for t.
func (r *WorkerRegistry) Select(t *models.Task) (*models.Worker, error) {
	return r.SelectExcluding(t)
}

// SelectExcluding is Select ignoring the given worker IDs.
func (r *WorkerRegistry) SelectExcluding(t *models.Task, exclude ...string) (*models.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w := selectBest(r.orderedLocked(), t, toSet(exclude)); w != nil {
		return w.Clone(), nil
	}
	return nil, &NoWorkerAvailableError{TaskID: t.ID, TaskType: t.Type}
}

// acquire selects a worker and raises its load by delta in one step.
// It returns the load actually added so release can undo exactly that.
func (r *WorkerRegistry) acquire(t *models.Task, delta float64, exclude ...string) (*models.Worker, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := selectBest(r.orderedLocked(), t, toSet(exclude))
	if w == nil {
		return nil, 0, &NoWorkerAvailableError{TaskID: t.ID, TaskType: t.Type}
	}
	snapshot := w.Clone()
	before := w.Load
	w.Load = clamp01(w.Load + delta)
	return snapshot, w.Load - before, nil
}

// release lowers a worker's load by delta.
func (r *WorkerRegistry) release(id string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[id]; ok {
		w.Load = clamp01(w.Load - delta)
	}
}

func (r *WorkerRegistry) orderedLocked() []*models.Worker {
	out := make([]*models.Worker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workers[id])
	}
	return out
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = true
		}
	}
	return s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
