package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/ShayCichocki/qforge/internal/agent"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// flakyCaller fails every call until healthy is set.
func flakyCaller(healthy *atomic.Bool) agent.Caller {
	return agent.CallerFunc(func(_ context.Context, w *models.Worker, t *models.Task) (*agent.CallResult, error) {
		if !healthy.Load() {
			return nil, errors.New("worker unreachable")
		}
		return &agent.CallResult{Output: t.ID, TokenUsage: 1}, nil
	})
}

// failingCaller fails the first n calls and counts every call.
func failingCaller(n int64, calls *atomic.Int64) agent.Caller {
	return agent.CallerFunc(func(_ context.Context, w *models.Worker, t *models.Task) (*agent.CallResult, error) {
		if calls.Add(1) <= n {
			return nil, errors.New("worker unreachable")
		}
		return &agent.CallResult{Output: t.ID, TokenUsage: 1}, nil
	})
}

func TestFailoverStrategyValid(t *testing.T) {
	tests := []struct {
		s    FailoverStrategy
		want bool
	}{
		{FailoverRedirect, true},
		{FailoverRetry, true},
		{FailoverQueue, true},
		{FailoverEscalate, true},
		{"reboot", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.s.Valid(); got != tt.want {
			t.Errorf("%q.Valid() = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestQueueFailoverThenResume(t *testing.T) {
	var healthy atomic.Bool
	o := newTestOrchestrator(t, flakyCaller(&healthy),
		WithWorkers(generalist("w")),
		WithFailover(FailoverQueue, 1),
	)
	tasks := []*models.Task{
		{ID: "a", Type: models.TaskTypeImplementation},
		{ID: "b", Type: models.TaskTypeAnalysis, DependsOn: []string{"a"}},
	}
	if _, err := o.Submit(context.Background(), "wf", tasks, models.StrategySequential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := waitFinished(t, o, "wf")

	if got := taskOf(r, "a").Status; got != models.TaskStatusPending {
		t.Fatalf("expected queued task to stay pending, got %s", got)
	}
	if got := taskOf(r, "b").Status; got != models.TaskStatusBlocked {
		t.Errorf("expected dependent blocked, got %s", got)
	}
	if r.Queued != 1 || r.Status != models.WorkflowStatusFailed {
		t.Errorf("expected one queued task and failed workflow, got queued=%d status=%s", r.Queued, r.Status)
	}
	q, err := o.PendingQueue("wf")
	if err != nil {
		t.Fatalf("PendingQueue: %v", err)
	}
	if !reflect.DeepEqual(q, []string{"a"}) {
		t.Errorf("expected queue [a], got %v", q)
	}

	healthy.Store(true)
	ack, err := o.Resume(context.Background(), "wf")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if ack.TaskCount != 2 {
		t.Errorf("expected 2 tasks to rerun, got %d", ack.TaskCount)
	}
	r = waitFinished(t, o, "wf")
	if r.Status != models.WorkflowStatusCompleted {
		t.Fatalf("expected completed after resume, got %s: %v", r.Status, statusOf(r))
	}
	if q, _ := o.PendingQueue("wf"); len(q) != 0 {
		t.Errorf("expected empty queue after resume, got %v", q)
	}
	if a := taskOf(r, "a"); a.Attempts != 1 {
		t.Errorf("expected attempt count reset on resume, got %d", a.Attempts)
	}
}

func TestResumeRejectsUnknownWorkflow(t *testing.T) {
	o := newTestOrchestrator(t, okCaller)
	if _, err := o.Resume(context.Background(), "ghost"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Fatalf("expected ErrUnknownWorkflow, got %v", err)
	}
}

func TestResumeRejectsRunningWorkflow(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	caller := agent.CallerFunc(func(_ context.Context, _ *models.Worker, _ *models.Task) (*agent.CallResult, error) {
		close(started)
		<-release
		return &agent.CallResult{Output: "ok"}, nil
	})
	o := newTestOrchestrator(t, caller, WithWorkers(generalist("w")))
	if _, err := o.Submit(context.Background(), "wf", []*models.Task{{ID: "t", Type: models.TaskTypePlanning}}, models.StrategySequential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	_, err := o.Resume(context.Background(), "wf")
	close(release)
	if !errors.Is(err, ErrWorkflowRunning) {
		t.Fatalf("expected ErrWorkflowRunning, got %v", err)
	}
	waitFinished(t, o, "wf")
}

func TestPublicFailover(t *testing.T) {
	var healthy atomic.Bool
	o := newTestOrchestrator(t, flakyCaller(&healthy), WithWorkers(generalist("w")), WithMaxAttempts(1))
	tasks := []*models.Task{
		{ID: "broken", Type: models.TaskTypeImplementation, Priority: models.PriorityMedium},
		{ID: "fine", Type: models.TaskTypeAnalysis},
	}
	if _, err := o.Submit(context.Background(), "wf", tasks, models.StrategySequential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFinished(t, o, "wf")

	// A separate workflow supplies a completed task.
	healthy.Store(true)
	if _, err := o.Submit(context.Background(), "done", []*models.Task{{ID: "finished", Type: models.TaskTypePlanning}}, models.StrategySequential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFinished(t, o, "done")
	ctx := context.Background()

	tests := []struct {
		name     string
		ids      []string
		strategy FailoverStrategy
		want     RecoveryCounts
	}{
		{"retry failed task", []string{"broken"}, FailoverRetry, RecoveryCounts{Recovered: 1}},
		{"escalate", []string{"broken"}, FailoverEscalate, RecoveryCounts{Recovered: 1}},
		{"redirect without alternative", []string{"broken"}, FailoverRedirect, RecoveryCounts{Unrecovered: 1}},
		{"completed task", []string{"finished"}, FailoverRetry, RecoveryCounts{Unrecovered: 1}},
		{"unknown task", []string{"nope"}, FailoverRetry, RecoveryCounts{Unrecovered: 1}},
		{"invalid strategy", []string{"broken"}, "reboot", RecoveryCounts{Unrecovered: 1}},
		{"mixed", []string{"broken", "nope", "finished"}, FailoverQueue, RecoveryCounts{Recovered: 1, Unrecovered: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.Failover(ctx, "w", tt.ids, tt.strategy); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	r, err := o.Status("wf")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	broken := taskOf(r, "broken")
	if broken.Status != models.TaskStatusPending || broken.Attempts != 0 {
		t.Errorf("expected recovered task pending with fresh attempts, got %s/%d", broken.Status, broken.Attempts)
	}
	if broken.Priority != models.PriorityHigh {
		t.Errorf("expected escalated priority, got %s", broken.Priority)
	}
	if q, _ := o.PendingQueue("wf"); !reflect.DeepEqual(q, []string{"broken"}) {
		t.Errorf("expected broken queued, got %v", q)
	}

	if _, err := o.Resume(ctx, "wf"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	r = waitFinished(t, o, "wf")
	if r.Status != models.WorkflowStatusCompleted {
		t.Errorf("expected completed after resume, got %s: %v", r.Status, statusOf(r))
	}
}

func TestFailoverRedirectsToOtherWorker(t *testing.T) {
	var healthy atomic.Bool
	o := newTestOrchestrator(t, flakyCaller(&healthy),
		WithWorkers(generalist("w1"), generalist("w2")),
		WithMaxAttempts(1),
		WithFailover(FailoverRedirect, 0),
	)
	if _, err := o.Submit(context.Background(), "wf", []*models.Task{{ID: "t", Type: models.TaskTypePlanning}}, models.StrategySequential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := waitFinished(t, o, "wf")
	if got := taskOf(r, "t"); got.Status != models.TaskStatusFailed || got.AssignedTo != "w1" {
		t.Fatalf("expected t failed on w1, got %s on %s", got.Status, got.AssignedTo)
	}

	if got := o.Failover(context.Background(), "w1", []string{"t"}, FailoverRedirect); got != (RecoveryCounts{Recovered: 1}) {
		t.Fatalf("expected redirect to recover, got %+v", got)
	}
	r, _ = o.Status("wf")
	if got := taskOf(r, "t").AssignedTo; got != "w2" {
		t.Errorf("expected reassignment to w2, got %s", got)
	}

	healthy.Store(true)
	if _, err := o.Resume(context.Background(), "wf"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFinished(t, o, "wf")
	log, err := o.CompletionLog("wf")
	if err != nil {
		t.Fatalf("CompletionLog: %v", err)
	}
	if len(log) != 1 || log[0].WorkerID != "w2" {
		t.Errorf("expected completion on w2, got %+v", log)
	}
}

func TestRetryFailoverWithinRun(t *testing.T) {
	tests := []struct {
		name      string
		failures  int64
		wantCalls int64
		want      models.TaskStatus
	}{
		{"second round succeeds", 2, 3, models.TaskStatusCompleted},
		{"rounds exhausted", 100, 4, models.TaskStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			var failovers atomic.Int64
			hook := HookFunc(func(_ context.Context, ev Event) error {
				if ev.Type == EventTaskFailover && ev.Strategy == string(FailoverRetry) {
					failovers.Add(1)
				}
				return nil
			})
			o := newTestOrchestrator(t, failingCaller(tt.failures, &calls),
				WithWorkers(generalist("w")),
				WithMaxAttempts(2),
				WithFailover(FailoverRetry, 1),
				WithHook(hook),
			)
			if _, err := o.Submit(context.Background(), "wf", []*models.Task{{ID: "t", Type: models.TaskTypeImplementation}}, models.StrategySequential); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			r := waitFinished(t, o, "wf")

			task := taskOf(r, "t")
			if task.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, task.Status)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, got)
			}
			if task.FailoverRounds != 1 {
				t.Errorf("expected one failover round, got %d", task.FailoverRounds)
			}
			if task.Attempts > 2 {
				t.Errorf("attempts %d exceed the per-round budget", task.Attempts)
			}
			if tt.want == models.TaskStatusCompleted && task.Attempts != 1 {
				t.Errorf("expected attempts reset before the second round, got %d", task.Attempts)
			}
			if got := failovers.Load(); got != 1 {
				t.Errorf("expected one retry failover event, got %d", got)
			}
		})
	}
}

func TestEscalateFailoverWithinRun(t *testing.T) {
	var calls atomic.Int64
	o := newTestOrchestrator(t, failingCaller(2, &calls),
		WithWorkers(generalist("w")),
		WithMaxAttempts(2),
		WithFailover(FailoverEscalate, 1),
	)
	tasks := []*models.Task{{ID: "t", Type: models.TaskTypeAnalysis, Priority: models.PriorityMedium}}
	if _, err := o.Submit(context.Background(), "wf", tasks, models.StrategySequential); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := waitFinished(t, o, "wf")

	task := taskOf(r, "t")
	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed after escalation, got %s", task.Status)
	}
	if task.Priority != models.PriorityHigh {
		t.Errorf("expected priority raised to high, got %s", task.Priority)
	}
	if task.Attempts != 1 || task.FailoverRounds != 1 {
		t.Errorf("expected a fresh attempt in round two, got attempts=%d rounds=%d", task.Attempts, task.FailoverRounds)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}
