package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/qforge/internal/api"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// Completer is the subset of api.Client the APICaller needs.
type Completer interface {
	Complete(ctx context.Context, req api.CompletionRequest) (*api.Completion, error)
}

var _ Completer = (*api.Client)(nil)

// APICaller runs a task as a single Anthropic completion.
type APICaller struct {
	client    Completer
	maxTokens int64
}

// NewAPICaller creates an APICaller. maxTokens <= 0 uses the client default.
func NewAPICaller(client Completer, maxTokens int64) *APICaller {
	return &APICaller{client: client, maxTokens: maxTokens}
}

// Call implements Caller. The worker's Model, when set, overrides the client default.
func (a *APICaller) Call(ctx context.Context, w *models.Worker, t *models.Task) (*CallResult, error) {
	resp, err := a.client.Complete(ctx, api.CompletionRequest{
		Model:     w.Model,
		System:    SystemPrompt(t.Type),
		Prompt:    TaskPrompt(t),
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("complete task %s: %w", t.ID, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, fmt.Errorf("complete task %s: empty response", t.ID)
	}
	return &CallResult{
		Output:     resp.Text,
		TokenUsage: resp.InputTokens + resp.OutputTokens,
	}, nil
}
