package orchestrator

import (
	"errors"
	"math"
	"testing"

	"github.com/ShayCichocki/qforge/pkg/models"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		worker models.Worker
		task   models.Task
		want   float64
	}{
		{
			name:   "idle worker, no bonus",
			worker: models.Worker{Load: 0},
			task:   models.Task{Type: models.TaskTypePlanning, Priority: models.PriorityMedium},
			want:   1.0,
		},
		{
			name:   "load reduces score",
			worker: models.Worker{Load: 0.4},
			task:   models.Task{Type: models.TaskTypePlanning, Priority: models.PriorityMedium},
			want:   0.6,
		},
		{
			name:   "specialization bonus",
			worker: models.Worker{Specialization: models.TaskTypePlanning},
			task:   models.Task{Type: models.TaskTypePlanning, Priority: models.PriorityMedium},
			want:   1.3,
		},
		{
			name:   "critical with high performance",
			worker: models.Worker{Performance: 0.95},
			task:   models.Task{Type: models.TaskTypeAnalysis, Priority: models.PriorityCritical},
			want:   1.2,
		},
		{
			name:   "critical at performance threshold gets nothing",
			worker: models.Worker{Performance: 0.9},
			task:   models.Task{Type: models.TaskTypeAnalysis, Priority: models.PriorityCritical},
			want:   1.0,
		},
		{
			name:   "low priority with cheap worker",
			worker: models.Worker{CostEfficiency: 0.85},
			task:   models.Task{Type: models.TaskTypeAnalysis, Priority: models.PriorityLow},
			want:   1.1,
		},
		{
			name:   "cheap worker on high priority gets nothing",
			worker: models.Worker{CostEfficiency: 0.85, Performance: 1},
			task:   models.Task{Type: models.TaskTypeAnalysis, Priority: models.PriorityHigh},
			want:   1.0,
		},
		{
			name:   "all bonuses stack",
			worker: models.Worker{Load: 0.5, Specialization: models.TaskTypeAnalysis, Performance: 0.99},
			task:   models.Task{Type: models.TaskTypeAnalysis, Priority: models.PriorityCritical},
			want:   1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(&tt.worker, &tt.task); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligible(t *testing.T) {
	w := &models.Worker{Capabilities: []models.TaskType{models.TaskTypePlanning}, Status: models.WorkerStatusAvailable}
	task := &models.Task{Type: models.TaskTypePlanning}

	if !Eligible(w, task) {
		t.Error("expected available capable worker to be eligible")
	}
	if Eligible(w, &models.Task{Type: models.TaskTypeAnalysis}) {
		t.Error("expected worker without capability to be ineligible")
	}
	for _, s := range []models.WorkerStatus{models.WorkerStatusBusy, models.WorkerStatusOffline} {
		w.Status = s
		if Eligible(w, task) {
			t.Errorf("expected %s worker to be ineligible", s)
		}
	}
}

func TestSelectTieBreaksByRegistrationOrder(t *testing.T) {
	r := NewWorkerRegistry()
	for _, id := range []string{"w-b", "w-a", "w-c"} {
		if err := r.Register(generalist(id)); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	task := &models.Task{ID: "t", Type: models.TaskTypeAnalysis, Priority: models.PriorityMedium}
	for i := 0; i < 20; i++ {
		w, err := r.Select(task)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if w.ID != "w-b" {
			t.Fatalf("expected first registered worker w-b, got %s", w.ID)
		}
	}
}

func TestSelectPrefersHighestScore(t *testing.T) {
	r := NewWorkerRegistry()
	_ = r.Register(&models.Worker{ID: "busy", Capabilities: models.TaskTypes(), Load: 0.8})
	_ = r.Register(&models.Worker{ID: "specialist", Capabilities: models.TaskTypes(), Specialization: models.TaskTypeKnowledge, Load: 0.2})
	_ = r.Register(&models.Worker{ID: "idle", Capabilities: models.TaskTypes()})

	w, err := r.Select(&models.Task{ID: "k", Type: models.TaskTypeKnowledge, Priority: models.PriorityMedium})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if w.ID != "specialist" {
		t.Errorf("expected specialist (1.1) over idle (1.0), got %s", w.ID)
	}

	w, err = r.SelectExcluding(&models.Task{ID: "k", Type: models.TaskTypeKnowledge}, "specialist")
	if err != nil {
		t.Fatalf("SelectExcluding: %v", err)
	}
	if w.ID != "idle" {
		t.Errorf("expected idle when specialist excluded, got %s", w.ID)
	}
}

func TestSelectNoWorker(t *testing.T) {
	r := NewWorkerRegistry()
	_ = r.Register(&models.Worker{ID: "off", Capabilities: models.TaskTypes(), Status: models.WorkerStatusOffline})

	_, err := r.Select(&models.Task{ID: "t1", Type: models.TaskTypePlanning})
	if !errors.Is(err, ErrNoWorkerAvailable) {
		t.Fatalf("expected ErrNoWorkerAvailable, got %v", err)
	}
	var nwe *NoWorkerAvailableError
	if !errors.As(err, &nwe) || nwe.TaskID != "t1" {
		t.Errorf("expected NoWorkerAvailableError for t1, got %v", err)
	}
}

func TestRegistryRegisterReplaceKeepsOrder(t *testing.T) {
	r := NewWorkerRegistry()
	_ = r.Register(generalist("a"))
	_ = r.Register(generalist("b"))
	replacement := generalist("a")
	replacement.Load = 2 // clamped
	_ = r.Register(replacement)

	all := r.All()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("expected order [a b], got %v", all)
	}
	if all[0].Load != 1 {
		t.Errorf("expected load clamped to 1, got %v", all[0].Load)
	}

	if err := r.Register(&models.Worker{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for empty id, got %v", err)
	}
	if err := r.Register(&models.Worker{ID: "x", Capabilities: []models.TaskType{"cooking"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for unknown capability, got %v", err)
	}
	if err := r.SetStatus("ghost", models.WorkerStatusBusy); err == nil {
		t.Error("expected error for unknown worker")
	}
}

func TestRegistryAcquireRelease(t *testing.T) {
	r := NewWorkerRegistry()
	w := generalist("w")
	w.Load = 0.95
	_ = r.Register(w)

	got, delta, err := r.acquire(&models.Task{Type: models.TaskTypePlanning}, 0.1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got.Load != 0.95 {
		t.Errorf("expected snapshot before dispatch, got load %v", got.Load)
	}
	if r.Get("w").Load != 1 {
		t.Errorf("expected load clamped at 1, got %v", r.Get("w").Load)
	}
	r.release("w", delta)
	if math.Abs(r.Get("w").Load-0.95) > 1e-9 {
		t.Errorf("expected load restored to 0.95, got %v", r.Get("w").Load)
	}
}
