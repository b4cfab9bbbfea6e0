// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Validation failures returned by Build.
var (
	ErrEmptyID           = errors.New("task id is empty")
	ErrDuplicateID       = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
)

// CycleError carries the ids that form a detected cycle. It unwraps to ErrCycleDetected.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
// A graph is immutable once Build returns successfully.
type DependencyGraph struct {
	// order holds task IDs in input order.
	order []string
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on, in declaration order.
	edges map[string][]string
	// reverse maps task ID to IDs of tasks that depend on it, in input order.
	reverse map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.Task),
		edges:    make(map[string][]string),
		reverse:  make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from tasks in the order given.
// Duplicate or empty IDs and references to unknown tasks are rejected,
// as are cycles (the returned error wraps ErrCycleDetected).
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	for i, task := range tasks {
		if task == nil || task.ID == "" {
			return fmt.Errorf("task at index %d: %w", i, ErrEmptyID)
		}
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateID, task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	for _, task := range tasks {
		seen := make(map[string]bool, len(task.DependsOn))
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			g.reverse[depID] = append(g.reverse[depID], task.ID)
		}
	}

	if path := g.findCycle(); path != nil {
		return &CycleError{Path: path}
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes, edges=%v", len(g.nodes), g.edges)
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	return g.findCycle() != nil
}

// findCycle runs a colored depth-first search and returns the first back-edge
// cycle found, or nil.
func (g *DependencyGraph) findCycle() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				for i, s := range stack {
					if s == depID {
						cycle = append(append([]string(nil), stack[i:]...), depID)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them. Nodes are visited in input
// order and dependencies in declaration order, so the result is deterministic.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns, in input order, IDs of tasks for which isCandidate is true and
// every dependency satisfies isDone.
func (g *DependencyGraph) Ready(isCandidate, isDone func(id string) bool) []string {
	var ready []string
	for _, id := range g.order {
		if !isCandidate(id) {
			continue
		}
		ok := true
		for _, depID := range g.edges[id] {
			if !isDone(depID) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	g.debugLog("[graph.Ready] %d ready tasks: %v", len(ready), ready)
	return ready
}

// Roots returns IDs of tasks without dependencies, in input order.
func (g *DependencyGraph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.edges[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}

// Dependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) Dependencies(taskID string) []string {
	return append([]string(nil), g.edges[taskID]...)
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (g *DependencyGraph) Dependents(taskID string) []string {
	return append([]string(nil), g.reverse[taskID]...)
}

// TransitiveDependents returns every task downstream of taskID, breadth first.
func (g *DependencyGraph) TransitiveDependents(taskID string) []string {
	seen := map[string]bool{taskID: true}
	queue := []string{taskID}
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.reverse[id] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}
