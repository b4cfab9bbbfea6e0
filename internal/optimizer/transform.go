package optimizer

import (
	"math"
	"sort"
)

// Transform applies the category's deterministic rewrite and returns a new slice.
func Transform(cat Category, in []Component) []Component {
	comps := append([]Component(nil), in...)
	switch cat {
	case CategoryCode:
		sort.SliceStable(comps, func(i, j int) bool {
			return comps[i].Priority.Rank() > comps[j].Priority.Rank()
		})
	case CategoryMemory:
		comps = dedupe(comps)
	case CategoryPrompts:
		comps = dropNearDuplicates(comps, 0.1)
	case CategoryTraces:
		sort.SliceStable(comps, func(i, j int) bool {
			return comps[i].Type < comps[j].Type
		})
	case CategoryContracts:
		for i := range comps {
			bound := comps[i].Complexity() * 0.9
			if bound < Epsilon {
				bound = Epsilon
			}
			comps[i].Scale = bound / comps[i].baseComplexity()
		}
	case CategoryTokens:
		distill(comps)
	}
	return comps
}

// dedupe keeps the first component for each (type, priority) pair.
func dedupe(comps []Component) []Component {
	type key struct {
		t string
		p string
	}
	seen := make(map[key]bool, len(comps))
	out := comps[:0]
	for _, c := range comps {
		k := key{string(c.Type), string(c.Priority)}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// dropNearDuplicates drops a component whose complexity lies within tol of an
// earlier kept component of the same type.
func dropNearDuplicates(comps []Component, tol float64) []Component {
	var kept []Component
	for _, c := range comps {
		dup := false
		for _, k := range kept {
			if k.Type == c.Type && math.Abs(k.Complexity()-c.Complexity()) <= tol {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

// distill pulls each token estimate halfway toward the category average.
func distill(comps []Component) {
	if len(comps) == 0 {
		return
	}
	sum := 0
	for _, c := range comps {
		sum += c.Tokens
	}
	avg := float64(sum) / float64(len(comps))
	for i := range comps {
		comps[i].Tokens = int(math.Round((float64(comps[i].Tokens) + avg) / 2))
	}
}
