package optimizer

import (
	"math"
	"time"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// DefaultMaxIterations is used when a negative iteration count is given.
const DefaultMaxIterations = 10

// Step records one attempted rotation.
type Step struct {
	Iteration int      `json:"iteration"`
	Category  Category `json:"category"`
	Operator  Operator `json:"operator"`
	MDL       float64  `json:"mdl"`
	Accepted  bool     `json:"accepted"`
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithDebugLog sets a printf-style logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(o *Optimizer) {
		if fn != nil {
			o.debugLog = fn
		}
	}
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

// Optimizer runs the local search. It holds no state between runs.
type Optimizer struct {
	debugLog func(format string, args ...interface{})
	now      func() time.Time
}

// New creates an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		debugLog: func(format string, args ...interface{}) {},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run maps tasks to categories and hill-climbs for up to maxIterations rotations.
// A rotation is kept only when it strictly lowers the best MDL seen so far;
// otherwise every category reverts to the best snapshot.
func (o *Optimizer) Run(tasks []*models.Task, maxIterations int) Result {
	if maxIterations < 0 {
		maxIterations = DefaultMaxIterations
	}

	comps := make([]Component, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		comps = append(comps, NewComponent(t))
	}

	best := Map(comps)
	baseline := best.MDL()
	bestMDL := baseline
	o.debugLog("[optimizer] baseline MDL %.4f over %d tasks", baseline, len(comps))

	var steps []Step
	if len(comps) > 0 {
		current := best.Clone()
		for i := 1; i <= maxIterations; i++ {
			cat := current.highestEntropy()
			current[cat] = Transform(cat, current[cat])
			mdl := current.MDL()

			step := Step{Iteration: i, Category: cat, Operator: cat.Operator(), MDL: mdl}
			if mdl < bestMDL {
				step.Accepted = true
				bestMDL = mdl
				best = current.Clone()
			} else {
				current = best.Clone()
			}
			steps = append(steps, step)
			o.debugLog("[optimizer] iteration %d: %s(%s) mdl=%.4f accepted=%v", i, step.Operator, cat, mdl, step.Accepted)
		}
	}

	return o.result(best, baseline, bestMDL, steps)
}

func (o *Optimizer) result(best Configuration, baseline, final float64, steps []Step) Result {
	r := Result{
		BaselineMDL: baseline,
		FinalMDL:    final,
		Improvement: baseline - final,
		Steps:       steps,
		Timestamp:   o.now().UTC(),
		Metrics: Metrics{
			TaskCounts: make(map[Category]int, len(categoryOrder)),
		},
	}
	if baseline > 0 {
		r.ImprovementPct = r.Improvement / baseline * 100
	}
	r.Metrics.Efficiency = r.ImprovementPct
	for _, s := range steps {
		r.Operators = append(r.Operators, s.Operator)
	}

	entropies := make([]float64, 0, len(categoryOrder))
	for _, cat := range categoryOrder {
		h := Entropy(best[cat])
		entropies = append(entropies, h)
		r.Categories = append(r.Categories, CategorySnapshot{
			Name:       cat,
			Weight:     cat.Weight(),
			Entropy:    h,
			Components: append([]Component(nil), best[cat]...),
		})
		r.Metrics.TotalEntropy += h
		r.Metrics.TaskCounts[cat] = len(best[cat])
	}
	r.Metrics.CategoryBalance = stddev(entropies)
	r.Fingerprint = Fingerprint(r.Categories)
	return r
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return math.Sqrt(v / float64(len(xs)))
}
