package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// DryRunCaller simulates workers without calling any model.
// Token usage echoes the task's estimate (1000 when absent).
type DryRunCaller struct {
	// Latency is how long each call pretends to work.
	Latency time.Duration
}

// Call implements Caller.
func (d *DryRunCaller) Call(ctx context.Context, w *models.Worker, t *models.Task) (*CallResult, error) {
	if d.Latency > 0 {
		timer := time.NewTimer(d.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	tokens := int64(t.EstimatedTokens)
	if tokens <= 0 {
		tokens = 1000
	}
	return &CallResult{
		Output:     fmt.Sprintf("dry-run: %s task %s handled by %s", t.Type, t.ID, w.ID),
		TokenUsage: tokens,
	}, nil
}
