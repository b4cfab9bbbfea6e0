package optimizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// CategorySnapshot is one category of the best configuration found.
type CategorySnapshot struct {
	Name       Category    `json:"name"`
	Weight     float64     `json:"weight"`
	Entropy    float64     `json:"entropy"`
	Components []Component `json:"components"`
}

// Metrics summarises the best configuration.
type Metrics struct {
	TotalEntropy    float64          `json:"total_entropy"`
	CategoryBalance float64          `json:"category_balance"`
	TaskCounts      map[Category]int `json:"task_counts"`
	Efficiency      float64          `json:"efficiency"`
}

// Result is the outcome of an optimization run.
type Result struct {
	WorkflowID     string             `json:"workflow_id,omitempty"`
	Categories     []CategorySnapshot `json:"categories"`
	BaselineMDL    float64            `json:"baseline_mdl"`
	FinalMDL       float64            `json:"final_mdl"`
	Improvement    float64            `json:"improvement"`
	ImprovementPct float64            `json:"improvement_pct"`
	Operators      []Operator         `json:"operators"`
	Steps          []Step             `json:"steps"`
	Metrics        Metrics            `json:"metrics"`
	Fingerprint    string             `json:"fingerprint"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Sequence returns the operator tags joined in order, e.g. "FFBU".
func (r Result) Sequence() string {
	var b strings.Builder
	for _, op := range r.Operators {
		b.WriteString(string(op))
	}
	return b.String()
}

// Fingerprint hashes the category snapshot with blake3.
// Categories are always in fixed order so the JSON encoding is stable.
func Fingerprint(cats []CategorySnapshot) string {
	data, err := json.Marshal(cats)
	if err != nil {
		return ""
	}
	hasher := blake3.New()
	if _, err := hasher.Write(data); err != nil {
		return ""
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Markdown renders the result as a short report.
func (r Result) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Optimization blueprint %s\n\n", shortHash(r.Fingerprint))
	if r.WorkflowID != "" {
		fmt.Fprintf(&b, "Workflow: `%s`\n\n", r.WorkflowID)
	}
	fmt.Fprintf(&b, "- Baseline MDL: %.4f\n", r.BaselineMDL)
	fmt.Fprintf(&b, "- Final MDL: %.4f\n", r.FinalMDL)
	fmt.Fprintf(&b, "- Improvement: %.4f (%.2f%%)\n", r.Improvement, r.ImprovementPct)
	fmt.Fprintf(&b, "- Operator sequence: `%s`\n", r.Sequence())
	fmt.Fprintf(&b, "- Total entropy: %.4f\n", r.Metrics.TotalEntropy)
	fmt.Fprintf(&b, "- Category balance: %.4f\n\n", r.Metrics.CategoryBalance)

	b.WriteString("| Category | Weight | Entropy | Tasks |\n|---|---|---|---|\n")
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "| %s | %.2f | %.4f | %d |\n", c.Name, c.Weight, c.Entropy, len(c.Components))
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
