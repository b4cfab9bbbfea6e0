// Package agent defines how tasks are handed to workers and ships the
// built-in worker backends.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// CallResult is what a worker returns for a successfully executed task.
type CallResult struct {
	Output     string
	TokenUsage int64
}

// Caller executes one task attempt on one worker.
// Any returned error counts as a failed attempt.
type Caller interface {
	Call(ctx context.Context, w *models.Worker, t *models.Task) (*CallResult, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, w *models.Worker, t *models.Task) (*CallResult, error)

// Call calls f.
func (f CallerFunc) Call(ctx context.Context, w *models.Worker, t *models.Task) (*CallResult, error) {
	return f(ctx, w, t)
}

// Router dispatches to a per-worker Caller, falling back to Default.
type Router struct {
	mu       sync.RWMutex
	byWorker map[string]Caller
	fallback Caller
}

// NewRouter creates a Router with the given fallback Caller (may be nil).
func NewRouter(fallback Caller) *Router {
	return &Router{byWorker: make(map[string]Caller), fallback: fallback}
}

// Route sets the Caller used for a worker ID.
func (r *Router) Route(workerID string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byWorker[workerID] = c
}

// Call implements Caller.
func (r *Router) Call(ctx context.Context, w *models.Worker, t *models.Task) (*CallResult, error) {
	r.mu.RLock()
	c, ok := r.byWorker[w.ID]
	if !ok {
		c = r.fallback
	}
	r.mu.RUnlock()

	if c == nil {
		return nil, fmt.Errorf("no caller routed for worker %s", w.ID)
	}
	return c.Call(ctx, w, t)
}

// Compile-time interface checks.
var (
	_ Caller = CallerFunc(nil)
	_ Caller = (*Router)(nil)
	_ Caller = (*DryRunCaller)(nil)
	_ Caller = (*APICaller)(nil)
)
