package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"running is valid", TaskStatusRunning, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
		{"typo status is invalid", TaskStatus("pendingg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskStatusPending:   false,
		TaskStatusRunning:   false,
		TaskStatusCompleted: true,
		TaskStatusFailed:    true,
		TaskStatusBlocked:   true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("TaskStatus(%q).Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTaskType_Valid(t *testing.T) {
	for _, tt := range TaskTypes() {
		if !tt.Valid() {
			t.Errorf("TaskType(%q).Valid() = false, want true", tt)
		}
	}
	for _, bad := range []TaskType{"", "Planning", "research"} {
		if bad.Valid() {
			t.Errorf("TaskType(%q).Valid() = true, want false", bad)
		}
	}
	if len(TaskTypes()) != 5 {
		t.Errorf("expected 5 task types, got %d", len(TaskTypes()))
	}
}

func TestPriority_Escalate(t *testing.T) {
	tests := []struct {
		from Priority
		want Priority
	}{
		{PriorityLow, PriorityHigh},
		{PriorityMedium, PriorityHigh},
		{PriorityHigh, PriorityCritical},
		{PriorityCritical, PriorityCritical},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			if got := tt.from.Escalate(); got != tt.want {
				t.Errorf("Priority(%q).Escalate() = %q, want %q", tt.from, got, tt.want)
			}
		})
	}
}

func TestPriority_Rank(t *testing.T) {
	if !(PriorityLow.Rank() < PriorityMedium.Rank() &&
		PriorityMedium.Rank() < PriorityHigh.Rank() &&
		PriorityHigh.Rank() < PriorityCritical.Rank()) {
		t.Error("expected ranks to increase from low to critical")
	}
	if Priority("bogus").Rank() != PriorityMedium.Rank() {
		t.Error("expected unknown priority to rank as medium")
	}
}

func TestTask_EffectiveMaxAttempts(t *testing.T) {
	task := Task{}
	if got := task.EffectiveMaxAttempts(); got != DefaultMaxAttempts {
		t.Errorf("EffectiveMaxAttempts() = %d, want %d", got, DefaultMaxAttempts)
	}
	task.MaxAttempts = 5
	if got := task.EffectiveMaxAttempts(); got != 5 {
		t.Errorf("EffectiveMaxAttempts() = %d, want 5", got)
	}
}

func TestTask_CloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := &Task{
		ID:        "a",
		DependsOn: []string{"b"},
		Input:     map[string]string{"k": "v"},
		StartedAt: &now,
	}

	c := orig.Clone()
	c.DependsOn[0] = "changed"
	c.Input["k"] = "changed"
	*c.StartedAt = now.Add(time.Hour)

	if orig.DependsOn[0] != "b" {
		t.Error("clone shares DependsOn with original")
	}
	if orig.Input["k"] != "v" {
		t.Error("clone shares Input with original")
	}
	if !orig.StartedAt.Equal(now) {
		t.Error("clone shares StartedAt with original")
	}
}

func TestTask_DefaultValues(t *testing.T) {
	task := Task{}

	if task.Status != "" {
		t.Errorf("Task.Status default should be empty string, got %q", task.Status)
	}
	if task.DependsOn != nil {
		t.Errorf("Task.DependsOn default should be nil, got %v", task.DependsOn)
	}
	if task.CompletedAt != nil {
		t.Errorf("Task.CompletedAt default should be nil, got %v", task.CompletedAt)
	}
	if task.Claimed {
		t.Error("Task.Claimed default should be false")
	}
}
