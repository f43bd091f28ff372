package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

func TestCreateJob_AllocatesTwoPendingDossiers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if resp.Job.Status != "pending" {
		t.Errorf("expected pending job, got %s", resp.Job.Status)
	}

	thesis, antithesis := h.dossiers(t, resp.JobID)
	if thesis.Side != "thesis" || antithesis.Side != "antithesis" {
		t.Fatalf("unexpected sides: %s, %s", thesis.Side, antithesis.Side)
	}
	for _, d := range []*secondary.DossierRecord{thesis, antithesis} {
		if d.Status != "pending" {
			t.Errorf("dossier %s: expected pending, got %s", d.Side, d.Status)
		}
	}
	if !strings.Contains(thesis.Mission, "FOR") {
		t.Errorf("thesis mission should argue for: %q", thesis.Mission)
	}
	if !strings.Contains(antithesis.Mission, "AGAINST") {
		t.Errorf("antithesis mission should argue against: %q", antithesis.Mission)
	}

	if n, _ := h.queue.Len(ctx); n != 1 {
		t.Errorf("expected 1 queued decompose task, got %d", n)
	}
}

func TestCreateJob_RejectsBlankQuery(t *testing.T) {
	h := newHarness(t)

	for _, query := range []string{"", "   "} {
		_, err := h.orchestration.CreateJob(context.Background(), primary.CreateJobRequest{Query: query})
		if !errors.Is(err, primary.ErrInvalidRequest) {
			t.Errorf("CreateJob(%q) error = %v, want ErrInvalidRequest", query, err)
		}
	}

	jobs, err := h.orchestration.ListJobs(context.Background(), primary.JobFilters{})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestDecompose_PlansBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	if got := h.jobStatus(t, resp.JobID); got != "researching" {
		t.Errorf("expected job researching, got %s", got)
	}

	thesis, antithesis := h.dossiers(t, resp.JobID)
	if !strings.Contains(thesis.Mission, "FOR") || !strings.Contains(antithesis.Mission, "AGAINST") {
		t.Errorf("missions not refined: %q / %q", thesis.Mission, antithesis.Mission)
	}
	for _, d := range []*secondary.DossierRecord{thesis, antithesis} {
		if d.Status != "researching" {
			t.Errorf("dossier %s: expected researching, got %s", d.Side, d.Status)
		}
		steps := h.steps(t, d.ID)
		if len(steps) < 3 || len(steps) > 5 {
			t.Errorf("dossier %s: expected 3-5 steps, got %d", d.Side, len(steps))
		}
		for i, st := range steps {
			if st.Status != research.StepPending {
				t.Errorf("step %d: expected pending, got %s", st.StepNumber, st.Status)
			}
			if st.StepNumber != i+1 {
				t.Errorf("expected step number %d, got %d", i+1, st.StepNumber)
			}
		}
	}

	// decompose + one run_research per dossier
	if n, _ := h.queue.Len(ctx); n != 3 {
		t.Errorf("expected 3 queued tasks, got %d", n)
	}
}

func TestDecompose_FallsBackToDefaultPlan(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *scriptedLLM)
	}{
		{"provider failure", func(l *scriptedLLM) { l.fail(coreledger.CallOrchestratorMission) }},
		{"malformed answer", func(l *scriptedLLM) { l.reply(coreledger.CallOrchestratorMission, "I cannot produce JSON today.") }},
		{"too few steps", func(l *scriptedLLM) {
			l.reply(coreledger.CallOrchestratorMission, `{"thesis": {"mission": "m", "steps": []}, "antithesis": {"mission": "m", "steps": []}}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.llm)
			ctx := context.Background()

			resp, err := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Is Microsoft overvalued?"})
			if err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}
			if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
				t.Fatalf("Decompose failed: %v", err)
			}

			thesis, antithesis := h.dossiers(t, resp.JobID)
			if thesis.Mission != "Build the strongest possible case FOR: Is Microsoft overvalued?" {
				t.Errorf("unexpected thesis mission %q", thesis.Mission)
			}
			if antithesis.Mission != "Build the strongest possible case AGAINST: Is Microsoft overvalued?" {
				t.Errorf("unexpected antithesis mission %q", antithesis.Mission)
			}

			thesisSteps := h.steps(t, thesis.ID)
			antithesisSteps := h.steps(t, antithesis.ID)
			if len(thesisSteps) != 1 || len(antithesisSteps) != 1 {
				t.Fatalf("expected one default step per side, got %d and %d", len(thesisSteps), len(antithesisSteps))
			}
			if thesisSteps[0].ToolUsed != research.ToolMarketData {
				t.Errorf("thesis default tool = %s, want %s", thesisSteps[0].ToolUsed, research.ToolMarketData)
			}
			if antithesisSteps[0].ToolUsed != research.ToolRiskAssessment {
				t.Errorf("antithesis default tool = %s, want %s", antithesisSteps[0].ToolUsed, research.ToolRiskAssessment)
			}
		})
	}
}

func TestDecompose_ProviderFailureIsLedgered(t *testing.T) {
	h := newHarness(t)
	h.llm.fail(coreledger.CallOrchestratorMission)
	ctx := context.Background()

	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Is Microsoft overvalued?"})
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	entries, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{JobID: resp.JobID, Provider: coreledger.ProviderLLM})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 llm entry, got %d", len(entries))
	}
	if entries[0].CallType != coreledger.CallOrchestratorMission || entries[0].Status != coreledger.StatusFailed {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if !strings.Contains(entries[0].ErrorMessage, "scripted outage") {
		t.Errorf("error message not captured: %q", entries[0].ErrorMessage)
	}
}

func TestDecompose_DuplicateDeliveryIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("first Decompose failed: %v", err)
	}
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("second Decompose failed: %v", err)
	}

	if got := h.llm.callCount(coreledger.CallOrchestratorMission); got != 1 {
		t.Errorf("expected 1 decomposition call, got %d", got)
	}
	thesis, _ := h.dossiers(t, resp.JobID)
	if got := len(h.steps(t, thesis.ID)); got != 3 {
		t.Errorf("expected 3 steps after duplicate delivery, got %d", got)
	}
	if n, _ := h.queue.Len(ctx); n != 3 {
		t.Errorf("duplicate delivery should not dispatch research again, queue len %d", n)
	}
}

func TestDecompose_UnknownJob(t *testing.T) {
	h := newHarness(t)
	err := h.orchestration.Decompose(context.Background(), "JOB-999")
	if !errors.Is(err, primary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOnResearchUnitFinished_ConvergesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	thesis, antithesis := h.dossiers(t, resp.JobID)

	if err := h.research.RunPlan(ctx, thesis.ID); err != nil {
		t.Fatalf("RunPlan(thesis) failed: %v", err)
	}
	converged, err := h.orchestration.OnResearchUnitFinished(ctx, thesis.ID)
	if err != nil || converged {
		t.Fatalf("job converged with one dossier researching: %v, %v", converged, err)
	}

	if err := h.research.RunPlan(ctx, antithesis.ID); err != nil {
		t.Fatalf("RunPlan(antithesis) failed: %v", err)
	}
	converged, err = h.orchestration.OnResearchUnitFinished(ctx, antithesis.ID)
	if err != nil || !converged {
		t.Fatalf("expected convergence, got %v, %v", converged, err)
	}
	converged, _ = h.orchestration.OnResearchUnitFinished(ctx, thesis.ID)
	if converged {
		t.Error("convergence must only be reported once")
	}
	if got := h.jobStatus(t, resp.JobID); got != "awaiting_verification" {
		t.Errorf("expected awaiting_verification, got %s", got)
	}
}

func TestGetJobAndDossier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID, thesisID, _ := h.researchedJob(t, "Should we invest in Apple?")

	detail, err := h.orchestration.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if len(detail.Dossiers) != 2 || detail.Dossiers[0].Side != "thesis" {
		t.Errorf("unexpected dossiers: %+v", detail.Dossiers)
	}
	if detail.HasReport {
		t.Error("job should have no report yet")
	}

	dossier, err := h.orchestration.GetDossier(ctx, thesisID)
	if err != nil {
		t.Fatalf("GetDossier failed: %v", err)
	}
	if len(dossier.Steps) != 3 || len(dossier.Evidence) == 0 {
		t.Errorf("expected 3 steps with evidence, got %d steps, %d evidence", len(dossier.Steps), len(dossier.Evidence))
	}
	if dossier.Dossier.Summary == "" {
		t.Error("finalized dossier should carry a summary")
	}

	if _, err := h.orchestration.GetJob(ctx, "JOB-999"); !errors.Is(err, primary.ErrNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrNotFound", err)
	}
	if _, err := h.orchestration.GetDossier(ctx, "DOS-999"); !errors.Is(err, primary.ErrNotFound) {
		t.Errorf("GetDossier(missing) = %v, want ErrNotFound", err)
	}
}

func TestListJobs_FiltersByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.researchedJob(t, "Should we invest in Apple?")
	if _, err := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Is Microsoft overvalued?"}); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	pending, err := h.orchestration.ListJobs(ctx, primary.JobFilters{Status: "pending"})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Query != "Is Microsoft overvalued?" {
		t.Errorf("unexpected pending jobs: %+v", pending)
	}

	if _, err := h.orchestration.ListJobs(ctx, primary.JobFilters{Status: "finished"}); !errors.Is(err, primary.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for unknown status, got %v", err)
	}
}
