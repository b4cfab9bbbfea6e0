// Package optimizer redistributes tasks across six fixed categories and
// hill-climbs over category transforms to lower a description-length metric.
package optimizer

import "github.com/ShayCichocki/qforge/pkg/models"

// Category is one of the six fixed accounting buckets.
type Category string

const (
	CategoryCode      Category = "code"
	CategoryMemory    Category = "memory"
	CategoryPrompts   Category = "prompts"
	CategoryTraces    Category = "traces"
	CategoryContracts Category = "contracts"
	CategoryTokens    Category = "tokens"
)

// Operator is the single-letter tag of a category transform.
type Operator string

const (
	OperatorFold      Operator = "F"
	OperatorUnify     Operator = "U"
	OperatorReduce    Operator = "R"
	OperatorLinearize Operator = "L"
	OperatorBind      Operator = "B"
	OperatorDistill   Operator = "D"
)

var categoryOrder = []Category{
	CategoryCode,
	CategoryMemory,
	CategoryPrompts,
	CategoryTraces,
	CategoryContracts,
	CategoryTokens,
}

// Categories returns the six categories in their fixed order.
// The order is also the tie-break when picking the highest-entropy category.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// Weight returns the fixed weight of the category. Weights sum to 1.0.
func (c Category) Weight() float64 {
	switch c {
	case CategoryCode:
		return 0.25
	case CategoryMemory:
		return 0.20
	case CategoryPrompts, CategoryTraces, CategoryContracts:
		return 0.15
	case CategoryTokens:
		return 0.10
	default:
		return 0
	}
}

// Operator returns the transform tag applied when this category is chosen.
func (c Category) Operator() Operator {
	switch c {
	case CategoryCode:
		return OperatorFold
	case CategoryMemory:
		return OperatorUnify
	case CategoryPrompts:
		return OperatorReduce
	case CategoryTraces:
		return OperatorLinearize
	case CategoryContracts:
		return OperatorBind
	default:
		return OperatorDistill
	}
}

// CategoryFor maps a task type to its category.
func CategoryFor(t models.TaskType) Category {
	switch t {
	case models.TaskTypeImplementation:
		return CategoryCode
	case models.TaskTypePlanning, models.TaskTypeKnowledge:
		return CategoryMemory
	case models.TaskTypeAnalysis:
		return CategoryPrompts
	case models.TaskTypeCoordination:
		return CategoryContracts
	default:
		return CategoryTokens
	}
}
