package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/qforge/pkg/models"
)

const basePrompt = `You are one worker in a coordinated workflow. Complete only the task you
are given and answer with the result. Do not ask follow-up questions.`

// SystemPrompt returns the role instructions for a task type.
func SystemPrompt(t models.TaskType) string {
	var role string
	switch t {
	case models.TaskTypePlanning:
		role = "Break the goal into concrete, ordered steps."
	case models.TaskTypeImplementation:
		role = "Produce the implementation requested. Prefer complete, working output."
	case models.TaskTypeKnowledge:
		role = "Answer with accurate, sourced facts. Say so when you are unsure."
	case models.TaskTypeAnalysis:
		role = "Analyse the input and report findings with supporting evidence."
	case models.TaskTypeCoordination:
		role = "Summarise the upstream results and state what each party must do next."
	default:
		role = "Complete the task."
	}
	return basePrompt + "\n\n" + role
}

// TaskPrompt renders the task and its input payload as the user message.
// Input keys are sorted so the prompt is stable.
func TaskPrompt(t *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task %s\n\nType: %s\nPriority: %s\n", t.ID, t.Type, t.Priority)
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Input) > 0 {
		keys := make([]string, 0, len(t.Input))
		for k := range t.Input {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n## Input\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, t.Input[k])
		}
	}
	return b.String()
}
