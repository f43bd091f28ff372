package dossier

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/example/dialectica/internal/core/research"
)

func TestBuildChecklist(t *testing.T) {
	proxy := &research.ProxyHypothesis{UnobservableClaim: "moat", DeductiveChain: "pricing power", ObservableProxy: "gross margin"}
	steps := []ChecklistStep{
		{Number: 1, Description: "Retrieve revenue", Tool: research.ToolFinancialFacts},
		{Number: 2, Description: "Measure gross margin", Tool: research.ToolFinancialFacts, Proxy: proxy},
	}
	evidence := []ChecklistEvidence{
		{ID: "EV-a", Confidence: 0.95},
		{ID: "EV-b", Confidence: 0.3},
		{ID: "EV-c", Confidence: 0.85},
		{ID: "EV-d", Confidence: 0.1},
		{ID: "EV-e", Confidence: 0.3},
	}

	got := BuildChecklist("summary", steps, evidence)

	if diff := cmp.Diff([]ChecklistStep{steps[1]}, got.Proxies); diff != "" {
		t.Errorf("Proxies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(steps, got.Reasoning); diff != "" {
		t.Errorf("Reasoning mismatch (-want +got):\n%s", diff)
	}
	var ids []string
	for _, e := range got.SpotCheck {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"EV-d", "EV-b", "EV-e"}, ids); diff != "" {
		t.Errorf("SpotCheck mismatch (-want +got):\n%s", diff)
	}
	if evidence[0].ID != "EV-a" {
		t.Error("BuildChecklist reordered the caller's slice")
	}
}

func TestBuildChecklistEmpty(t *testing.T) {
	got := BuildChecklist("", nil, nil)
	if len(got.Proxies) != 0 || len(got.SpotCheck) != 0 || len(got.Reasoning) != 0 {
		t.Errorf("expected empty checklist, got %+v", got)
	}
}
