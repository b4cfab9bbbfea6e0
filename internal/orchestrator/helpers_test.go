package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// noSleep skips backoff waits in tests.
func noSleep(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }

func newTestOrchestrator(t *testing.T, caller agent.Caller, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{WithSleep(noSleep), WithEventBuffer(4096)}
	o, err := New(RequiredConfig{Caller: caller}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func generalist(id string) *models.Worker {
	return &models.Worker{
		ID:           id,
		Capabilities: models.TaskTypes(),
		Status:       models.WorkerStatusAvailable,
		Performance:  0.5,
	}
}

func waitFinished(t *testing.T, o *Orchestrator, id string) StatusReport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r, err := o.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return r
}

func statusOf(r StatusReport) map[string]models.TaskStatus {
	out := make(map[string]models.TaskStatus, len(r.Tasks))
	for _, t := range r.Tasks {
		out[t.ID] = t.Status
	}
	return out
}

func taskOf(r StatusReport, id string) *models.Task {
	for _, t := range r.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// okCaller succeeds for every task.
var okCaller = agent.CallerFunc(func(_ context.Context, w *models.Worker, t *models.Task) (*agent.CallResult, error) {
	return &agent.CallResult{Output: t.ID + "@" + w.ID, TokenUsage: 10}, nil
})

// recorder logs start/end markers in call order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
