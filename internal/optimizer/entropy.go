package optimizer

import "math"

// Entropy is the Shannon entropy (bits) of the normalized complexities,
// multiplied by the total complexity. Empty or zero-total sets score 0.
func Entropy(components []Component) float64 {
	if len(components) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range components {
		total += c.Complexity()
	}
	if total <= 0 {
		return 0
	}

	h := 0.0
	for _, c := range components {
		p := c.Complexity() / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h * total
}

// Configuration assigns components to categories.
type Configuration map[Category][]Component

// Map places each task component into its category, keeping input order.
func Map(components []Component) Configuration {
	cfg := make(Configuration, len(categoryOrder))
	for _, cat := range categoryOrder {
		cfg[cat] = nil
	}
	for _, c := range components {
		cat := CategoryFor(c.Type)
		cfg[cat] = append(cfg[cat], c)
	}
	return cfg
}

// Clone copies the configuration so transforms cannot alias a snapshot.
func (cfg Configuration) Clone() Configuration {
	out := make(Configuration, len(cfg))
	for cat, comps := range cfg {
		out[cat] = append([]Component(nil), comps...)
	}
	return out
}

// MDL sums entropy*weight plus component description lengths over all categories.
func (cfg Configuration) MDL() float64 {
	total := 0.0
	for _, cat := range categoryOrder {
		comps := cfg[cat]
		total += Entropy(comps) * cat.Weight()
		for _, c := range comps {
			total += float64(c.DescriptionLength())
		}
	}
	return total
}

// highestEntropy returns the category with the largest entropy; ties go to
// the earlier category in fixed order.
func (cfg Configuration) highestEntropy() Category {
	best := categoryOrder[0]
	bestH := Entropy(cfg[best])
	for _, cat := range categoryOrder[1:] {
		if h := Entropy(cfg[cat]); h > bestH {
			best, bestH = cat, h
		}
	}
	return best
}
