package agent

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/qforge/pkg/models"
)

func TestTaskPromptContent(t *testing.T) {
	task := &models.Task{
		ID:        "review",
		Type:      models.TaskTypeAnalysis,
		Priority:  models.PriorityHigh,
		DependsOn: []string{"build", "lint"},
		Input:     map[string]string{"zeta": "last", "alpha": "first"},
	}

	prompt := TaskPrompt(task)

	requiredPhrases := []string{
		"## Task review",
		"Type: analysis",
		"Priority: high",
		"Depends on: build, lint",
		"## Input",
	}
	for _, phrase := range requiredPhrases {
		if !strings.Contains(prompt, phrase) {
			t.Errorf("TaskPrompt missing required phrase: %q", phrase)
		}
	}

	// Input keys are sorted
	if strings.Index(prompt, "alpha: first") > strings.Index(prompt, "zeta: last") {
		t.Errorf("input keys not sorted:\n%s", prompt)
	}
}

func TestTaskPromptOmitsEmptySections(t *testing.T) {
	prompt := TaskPrompt(&models.Task{ID: "solo", Type: models.TaskTypePlanning, Priority: models.PriorityLow})

	for _, phrase := range []string{"Depends on:", "## Input"} {
		if strings.Contains(prompt, phrase) {
			t.Errorf("TaskPrompt should omit %q for a task without it", phrase)
		}
	}
}

func TestTaskPromptIsStable(t *testing.T) {
	task := &models.Task{
		ID:    "stable",
		Type:  models.TaskTypeKnowledge,
		Input: map[string]string{"c": "3", "a": "1", "b": "2"},
	}
	first := TaskPrompt(task)
	for i := 0; i < 10; i++ {
		if got := TaskPrompt(task); got != first {
			t.Fatalf("TaskPrompt not stable:\n%s\nvs\n%s", first, got)
		}
	}
}
