package dossier

import (
	"sort"

	"github.com/example/dialectica/internal/core/research"
)

// SpotCheckSize is how many low-confidence evidence items a reviewer is
// asked to verify.
const SpotCheckSize = 3

// ChecklistStep is the reviewer's view of one executed step.
type ChecklistStep struct {
	Number        int
	Description   string
	Tool          string
	Justification string
	Rationale     string
	DataGap       string
	Proxy         *research.ProxyHypothesis
}

// ChecklistEvidence is the reviewer's view of one evidence item.
type ChecklistEvidence struct {
	ID         string
	Title      string
	Source     string
	Confidence float64
}

// Checklist is what a reviewer walks through before approving a dossier.
type Checklist struct {
	Summary   string
	Proxies   []ChecklistStep
	SpotCheck []ChecklistEvidence
	Reasoning []ChecklistStep
}

// BuildChecklist assembles the review checklist. Steps keep their plan
// order; spot-check evidence is the lowest-confidence items first.
func BuildChecklist(summary string, steps []ChecklistStep, evidence []ChecklistEvidence) Checklist {
	c := Checklist{Summary: summary, Reasoning: steps}
	for _, s := range steps {
		if s.Proxy != nil {
			c.Proxies = append(c.Proxies, s)
		}
	}

	sorted := make([]ChecklistEvidence, len(evidence))
	copy(sorted, evidence)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence < sorted[j].Confidence
	})
	if len(sorted) > SpotCheckSize {
		sorted = sorted[:SpotCheckSize]
	}
	c.SpotCheck = sorted
	return c
}
