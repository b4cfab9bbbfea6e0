package optimizer

import (
	"math"

	"github.com/ShayCichocki/qforge/pkg/models"
)

const (
	// DefaultEstimatedTokens is used when a task carries no estimate.
	DefaultEstimatedTokens = 1000
	// Epsilon is the lower bound for a scaled complexity.
	Epsilon = 1e-6

	baseOverheadBits = 10
	typeCodeBits     = 4
	priorityCodeBits = 2
)

// Component is the optimizer's view of a task.
type Component struct {
	TaskID       string          `json:"task_id"`
	Type         models.TaskType `json:"type"`
	Priority     models.Priority `json:"priority"`
	Dependencies int             `json:"dependencies"`
	Tokens       int             `json:"tokens"`
	// Scale multiplies the formula complexity; contract binding lowers it.
	Scale float64 `json:"scale"`
}

// NewComponent builds a component from a task.
func NewComponent(t *models.Task) Component {
	tokens := t.EstimatedTokens
	if tokens <= 0 {
		tokens = DefaultEstimatedTokens
	}
	return Component{
		TaskID:       t.ID,
		Type:         t.Type,
		Priority:     t.Priority,
		Dependencies: len(t.DependsOn),
		Tokens:       tokens,
		Scale:        1,
	}
}

// PriorityMultiplier weights complexity by task priority.
func PriorityMultiplier(p models.Priority) float64 {
	switch p {
	case models.PriorityLow:
		return 0.5
	case models.PriorityHigh:
		return 1.5
	case models.PriorityCritical:
		return 2.0
	default:
		return 1.0
	}
}

func (c Component) tokenScale() float64 {
	return float64(c.Tokens)/1000 + 1
}

func (c Component) baseComplexity() float64 {
	return PriorityMultiplier(c.Priority) *
		math.Log10(c.tokenScale()) *
		(1 + 0.2*float64(c.Dependencies))
}

// Complexity is priorityMultiplier * log10(tokens/1000 + 1) * (1 + 0.2*deps), times Scale.
func (c Component) Complexity() float64 {
	v := c.baseComplexity() * c.Scale
	if v < Epsilon {
		return Epsilon
	}
	return v
}

// DescriptionLength is the bit cost of describing the component.
func (c Component) DescriptionLength() int {
	return baseOverheadBits + typeCodeBits + priorityCodeBits +
		int(math.Ceil(math.Log2(c.tokenScale()))) +
		int(math.Ceil(c.Complexity()*8))
}
