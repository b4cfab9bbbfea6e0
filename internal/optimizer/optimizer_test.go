package optimizer

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// configurationOf rebuilds the best configuration from a result snapshot.
func configurationOf(r Result) Configuration {
	cfg := make(Configuration, len(r.Categories))
	for _, c := range r.Categories {
		cfg[c.Name] = append([]Component(nil), c.Components...)
	}
	return cfg
}

func mkTask(id string, tt models.TaskType, p models.Priority, tokens int, deps ...string) *models.Task {
	return &models.Task{ID: id, Type: tt, Priority: p, EstimatedTokens: tokens, DependsOn: deps}
}

func sampleTasks() []*models.Task {
	return []*models.Task{
		mkTask("plan", models.TaskTypePlanning, models.PriorityHigh, 2000),
		mkTask("impl-a", models.TaskTypeImplementation, models.PriorityMedium, 4000, "plan"),
		mkTask("impl-b", models.TaskTypeImplementation, models.PriorityCritical, 8000, "plan"),
		mkTask("know", models.TaskTypeKnowledge, models.PriorityHigh, 0),
		mkTask("an-1", models.TaskTypeAnalysis, models.PriorityLow, 1000),
		mkTask("an-2", models.TaskTypeAnalysis, models.PriorityLow, 1050),
		mkTask("coord", models.TaskTypeCoordination, models.PriorityMedium, 3000, "impl-a", "impl-b"),
	}
}

func TestCategoryWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, c := range Categories() {
		sum += c.Weight()
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, Categories(), 6)
}

func TestCategoryFor(t *testing.T) {
	tests := map[models.TaskType]Category{
		models.TaskTypeImplementation: CategoryCode,
		models.TaskTypePlanning:       CategoryMemory,
		models.TaskTypeKnowledge:      CategoryMemory,
		models.TaskTypeAnalysis:       CategoryPrompts,
		models.TaskTypeCoordination:   CategoryContracts,
		models.TaskType("other"):      CategoryTokens,
	}
	for tt, want := range tests {
		assert.Equal(t, want, CategoryFor(tt), "type %q", tt)
	}
}

func TestOperatorTags(t *testing.T) {
	got := ""
	for _, c := range Categories() {
		got += string(c.Operator())
	}
	assert.Equal(t, "FURLBD", got)
}

func TestComponentComplexity(t *testing.T) {
	c := NewComponent(mkTask("x", models.TaskTypePlanning, models.PriorityHigh, 0, "a", "b"))
	assert.Equal(t, DefaultEstimatedTokens, c.Tokens)

	want := 1.5 * math.Log10(2) * 1.4
	assert.InDelta(t, want, c.Complexity(), 1e-12)

	// 16 fixed bits + ceil(log2(2)) + ceil(complexity*8)
	assert.Equal(t, 16+1+int(math.Ceil(want*8)), c.DescriptionLength())
}

func TestEntropy(t *testing.T) {
	assert.Zero(t, Entropy(nil))

	single := []Component{NewComponent(mkTask("a", models.TaskTypePlanning, models.PriorityMedium, 1000))}
	assert.Zero(t, Entropy(single), "one component has no uncertainty")

	two := []Component{single[0], single[0]}
	// Two equal components: 1 bit times the total complexity.
	assert.InDelta(t, 2*single[0].Complexity(), Entropy(two), 1e-12)
}

func TestMDLNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	types := models.TaskTypes()
	prios := []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical}
	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(12)
		var comps []Component
		for i := 0; i < n; i++ {
			comps = append(comps, NewComponent(mkTask(fmt.Sprint(i), types[rng.Intn(len(types))], prios[rng.Intn(len(prios))], rng.Intn(20000))))
		}
		assert.GreaterOrEqual(t, Map(comps).MDL(), 0.0)
	}
}

func TestTransforms(t *testing.T) {
	t.Run("code sorts by priority descending, stable", func(t *testing.T) {
		in := []Component{
			{TaskID: "a", Priority: models.PriorityLow, Tokens: 1000, Scale: 1},
			{TaskID: "b", Priority: models.PriorityCritical, Tokens: 1000, Scale: 1},
			{TaskID: "c", Priority: models.PriorityLow, Tokens: 1000, Scale: 1},
		}
		out := Transform(CategoryCode, in)
		assert.Equal(t, []string{"b", "a", "c"}, ids(out))
		assert.Equal(t, []string{"a", "b", "c"}, ids(in), "input must not be modified")
	})

	t.Run("memory dedupes by type and priority", func(t *testing.T) {
		in := []Component{
			{TaskID: "a", Type: models.TaskTypePlanning, Priority: models.PriorityHigh, Tokens: 1000, Scale: 1},
			{TaskID: "b", Type: models.TaskTypePlanning, Priority: models.PriorityHigh, Tokens: 5000, Scale: 1},
			{TaskID: "c", Type: models.TaskTypeKnowledge, Priority: models.PriorityHigh, Tokens: 1000, Scale: 1},
		}
		assert.Equal(t, []string{"a", "c"}, ids(Transform(CategoryMemory, in)))
	})

	t.Run("prompts drops near-equal complexity", func(t *testing.T) {
		in := []Component{
			{TaskID: "a", Type: models.TaskTypeAnalysis, Priority: models.PriorityLow, Tokens: 1000, Scale: 1},
			{TaskID: "b", Type: models.TaskTypeAnalysis, Priority: models.PriorityLow, Tokens: 1050, Scale: 1},
			{TaskID: "c", Type: models.TaskTypeAnalysis, Priority: models.PriorityCritical, Tokens: 9000, Scale: 1},
		}
		assert.Equal(t, []string{"a", "c"}, ids(Transform(CategoryPrompts, in)))
	})

	t.Run("traces sorts by type name", func(t *testing.T) {
		in := []Component{
			{TaskID: "a", Type: models.TaskTypePlanning, Tokens: 1000, Scale: 1},
			{TaskID: "b", Type: models.TaskTypeAnalysis, Tokens: 1000, Scale: 1},
		}
		assert.Equal(t, []string{"b", "a"}, ids(Transform(CategoryTraces, in)))
	})

	t.Run("contracts scale complexity by 0.9", func(t *testing.T) {
		in := []Component{{TaskID: "a", Priority: models.PriorityMedium, Tokens: 1000, Scale: 1}}
		out := Transform(CategoryContracts, in)
		assert.InDelta(t, in[0].Complexity()*0.9, out[0].Complexity(), 1e-12)
	})

	t.Run("contracts clamp at epsilon", func(t *testing.T) {
		in := []Component{{TaskID: "a", Priority: models.PriorityLow, Tokens: 1, Scale: 1e-9}}
		out := Transform(CategoryContracts, in)
		assert.InDelta(t, Epsilon, out[0].Complexity(), 1e-15)
	})

	t.Run("tokens move halfway to the average", func(t *testing.T) {
		in := []Component{{TaskID: "a", Tokens: 1000, Scale: 1}, {TaskID: "b", Tokens: 3000, Scale: 1}}
		out := Transform(CategoryTokens, in)
		assert.Equal(t, 1500, out[0].Tokens)
		assert.Equal(t, 2500, out[1].Tokens)
		assert.Equal(t, 1000, in[0].Tokens)
	})
}

func TestOptimizeNeverRegresses(t *testing.T) {
	r := New().Run(sampleTasks(), 10)

	assert.LessOrEqual(t, r.FinalMDL, r.BaselineMDL)
	assert.InDelta(t, r.BaselineMDL-r.FinalMDL, r.Improvement, 1e-9)
	assert.Len(t, r.Operators, 10)
	assert.Len(t, r.Steps, 10)
	assert.InDelta(t, r.FinalMDL, configurationOf(r).MDL(), 1e-9)

	prev := r.BaselineMDL
	for _, s := range r.Steps {
		if s.Accepted {
			assert.Less(t, s.MDL, prev)
			prev = s.MDL
		}
	}
	assert.InDelta(t, prev, r.FinalMDL, 1e-9)
}

func TestOptimizeZeroIterations(t *testing.T) {
	tasks := sampleTasks()
	r := New().Run(tasks, 0)

	assert.Zero(t, r.Improvement)
	assert.Empty(t, r.Operators)
	assert.Equal(t, r.BaselineMDL, r.FinalMDL)

	var comps []Component
	for _, tk := range tasks {
		comps = append(comps, NewComponent(tk))
	}
	initial := Map(comps)
	for _, cat := range Categories() {
		assert.Equal(t, initial[cat], configurationOf(r)[cat], "category %s", cat)
	}
}

func TestOptimizeNegativeIterationsUsesDefault(t *testing.T) {
	r := New().Run(sampleTasks(), -1)
	assert.Len(t, r.Steps, DefaultMaxIterations)
}

func TestOptimizeSingleTaskConverges(t *testing.T) {
	r := New().Run([]*models.Task{mkTask("only", models.TaskTypePlanning, models.PriorityMedium, 1000)}, 5)

	require.Len(t, r.Steps, 5)
	assert.Equal(t, r.BaselineMDL, r.FinalMDL)
	for _, s := range r.Steps[1:] {
		assert.Equal(t, r.Steps[0].MDL, s.MDL, "MDL should be stable after the first iteration")
		assert.GreaterOrEqual(t, s.MDL, r.FinalMDL)
	}
	assert.Equal(t, 1, r.Metrics.TaskCounts[CategoryMemory])
}

func TestOptimizeEmptyInput(t *testing.T) {
	r := New().Run(nil, 5)

	assert.Zero(t, r.BaselineMDL)
	assert.Zero(t, r.FinalMDL)
	assert.Zero(t, r.Improvement)
	assert.Zero(t, r.ImprovementPct)
	assert.Empty(t, r.Steps)
	assert.Len(t, r.Categories, 6)
	assert.False(t, math.IsNaN(r.Metrics.Efficiency))
}

func TestOptimizeDeterministicFingerprint(t *testing.T) {
	a := New().Run(sampleTasks(), 10)
	b := New().Run(sampleTasks(), 10)

	assert.NotEmpty(t, a.Fingerprint)
	assert.Len(t, a.Fingerprint, 64)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, a.Sequence(), b.Sequence())

	c := New().Run(sampleTasks()[:3], 10)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestMetricsBalance(t *testing.T) {
	r := New().Run(sampleTasks(), 3)

	var hs []float64
	total := 0.0
	for _, c := range r.Categories {
		hs = append(hs, c.Entropy)
		total += c.Entropy
	}
	assert.InDelta(t, total, r.Metrics.TotalEntropy, 1e-9)
	assert.InDelta(t, stddev(hs), r.Metrics.CategoryBalance, 1e-12)
	assert.InDelta(t, r.ImprovementPct, r.Metrics.Efficiency, 1e-12)
}

func TestMarkdownReport(t *testing.T) {
	r := New().Run(sampleTasks(), 4)
	md := r.Markdown()
	assert.Contains(t, md, "# Optimization blueprint")
	assert.Contains(t, md, "| code |")
	assert.Contains(t, md, r.Sequence())
}

func ids(cs []Component) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.TaskID
	}
	return out
}
