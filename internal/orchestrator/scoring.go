package orchestrator

import "github.com/ShayCichocki/qforge/pkg/models"

// Scoring bonuses.
const (
	specializationBonus  = 0.3
	criticalPerfBonus    = 0.2
	criticalPerfFloor    = 0.9
	lowPriorityCostBonus = 0.1
	lowPriorityCostFloor = 0.8
)

// Eligible reports whether w can take t: it must list the task's type and be available.
func Eligible(w *models.Worker, t *models.Task) bool {
	return w.Status == models.WorkerStatusAvailable && w.Can(t.Type)
}

// Score rates how well w suits t. Higher is better.
//
//	score = (1 - load) + specialization bonus + priority bonus
func Score(w *models.Worker, t *models.Task) float64 {
	score := 1 - w.Load
	if w.Specialization != "" && w.Specialization == t.Type {
		score += specializationBonus
	}
	switch {
	case t.Priority == models.PriorityCritical && w.Performance > criticalPerfFloor:
		score += criticalPerfBonus
	case t.Priority == models.PriorityLow && w.CostEfficiency > lowPriorityCostFloor:
		score += lowPriorityCostBonus
	}
	return score
}

// selectBest returns the eligible worker with the highest score, skipping
// excluded IDs. Workers are considered in registration order and only a
// strictly higher score displaces the current best.
func selectBest(workers []*models.Worker, t *models.Task, exclude map[string]bool) *models.Worker {
	var best *models.Worker
	bestScore := 0.0
	for _, w := range workers {
		if exclude[w.ID] || !Eligible(w, t) {
			continue
		}
		s := Score(w, t)
		if best == nil || s > bestScore {
			best, bestScore = w, s
		}
	}
	return best
}
