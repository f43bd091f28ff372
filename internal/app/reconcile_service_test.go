package app

import (
	"context"
	"testing"
	"time"

	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// loseQueuedWork drops every queued task as a crashed consumer would.
func (h *harness) loseQueuedWork(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		n, err := h.queue.Len(ctx)
		if err != nil {
			t.Fatalf("Len failed: %v", err)
		}
		if n == 0 {
			return
		}
		task, err := h.queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if err := h.queue.Ack(ctx, task); err != nil {
			t.Fatalf("Ack failed: %v", err)
		}
	}
}

func TestSweep_NothingToRepair(t *testing.T) {
	h := newHarness(t)
	h.researchedJob(t, "Should we invest in Apple?")

	result, err := h.reconcile.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("expected no repairs, got %+v", result)
	}
}

func TestSweep_RequeuesLostDecomposition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	h.loseQueuedWork(t)

	// A fresh job is left alone.
	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.DecomposeRequeued != 0 {
		t.Errorf("fresh job should not be requeued: %+v", result)
	}

	h.age(t, "jobs", time.Hour)
	result, err = h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.DecomposeRequeued != 1 {
		t.Fatalf("expected decomposition requeued, got %+v", result)
	}

	h.drain(t)
	if got := h.jobStatus(t, resp.JobID); got != "awaiting_verification" {
		t.Errorf("expected the job to finish research, got %s", got)
	}
}

func TestSweep_RequeuesLostResearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	h.loseQueuedWork(t)
	h.age(t, "dossiers", time.Hour)

	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.ResearchRequeued != 2 {
		t.Fatalf("expected both dossiers requeued, got %+v", result)
	}

	h.drain(t)
	if got := h.jobStatus(t, resp.JobID); got != "awaiting_verification" {
		t.Errorf("expected awaiting_verification, got %s", got)
	}
}

func TestSweep_FinalizesFinishedResearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	h.loseQueuedWork(t)

	// Both dossiers executed every step, then the worker died before
	// finalizing.
	thesis, antithesis := h.dossiers(t, resp.JobID)
	for _, d := range []*secondary.DossierRecord{thesis, antithesis} {
		for _, st := range h.steps(t, d.ID) {
			if _, err := h.research.ExecuteStep(ctx, d.ID, st.ID); err != nil {
				t.Fatalf("ExecuteStep failed: %v", err)
			}
		}
	}
	h.age(t, "dossiers", time.Hour)

	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.DossiersFinalized != 2 || result.JobsConverged != 1 {
		t.Errorf("expected 2 finalized and 1 converged, got %+v", result)
	}
	if result.ResearchRequeued != 0 {
		t.Errorf("finalized dossiers must not be requeued: %+v", result)
	}
	if got := h.jobStatus(t, resp.JobID); got != "awaiting_verification" {
		t.Errorf("expected awaiting_verification, got %s", got)
	}
	if got := h.dossierStatus(t, thesis.ID); got != "awaiting_verification" {
		t.Errorf("expected thesis awaiting_verification, got %s", got)
	}
}

func TestSweep_ConvergesJobLeftResearching(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _ := h.orchestration.CreateJob(ctx, primary.CreateJobRequest{Query: "Should we invest in Apple?"})
	if err := h.orchestration.Decompose(ctx, resp.JobID); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	h.loseQueuedWork(t)

	// Research finished but the convergence check never ran.
	thesis, antithesis := h.dossiers(t, resp.JobID)
	for _, d := range []*secondary.DossierRecord{thesis, antithesis} {
		if err := h.research.RunPlan(ctx, d.ID); err != nil {
			t.Fatalf("RunPlan failed: %v", err)
		}
	}
	if got := h.jobStatus(t, resp.JobID); got != "researching" {
		t.Fatalf("precondition: job should still be researching, got %s", got)
	}

	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.JobsConverged != 1 {
		t.Errorf("expected one convergence, got %+v", result)
	}
	if got := h.jobStatus(t, resp.JobID); got != "awaiting_verification" {
		t.Errorf("expected awaiting_verification, got %s", got)
	}
}

func TestSweep_RequeuesLostSynthesis(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID, thesisID, antithesisID := h.researchedJob(t, "Should we invest in Apple?")
	approve(t, h, thesisID)
	approve(t, h, antithesisID)
	h.loseQueuedWork(t)
	h.age(t, "jobs", time.Hour)

	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.SynthesisRequeued != 1 || result.JobsCompleted != 0 {
		t.Fatalf("expected only a synthesis requeue, got %+v", result)
	}

	h.drain(t)
	if n := h.reportCount(t, jobID); n != 1 {
		t.Errorf("expected one report, got %d", n)
	}

	result, err = h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("a finished job needs no repair, got %+v", result)
	}
}

func TestSweep_LeavesInFlightSynthesisAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID, thesisID, antithesisID := h.researchedJob(t, "Should we invest in Apple?")
	approve(t, h, thesisID)
	approve(t, h, antithesisID)

	// The approval's synthesis is still queued when the sweep runs.
	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.SynthesisRequeued != 0 {
		t.Errorf("sweep dispatched a second synthesis: %+v", result)
	}
	if n, _ := h.queue.Len(ctx); n != 1 {
		t.Errorf("expected one queued synthesis, got %d", n)
	}

	h.drain(t)
	if n := h.reportCount(t, jobID); n != 1 {
		t.Errorf("expected one report, got %d", n)
	}
	if got := h.llm.callCount(coreledger.CallSynthesis); got != 1 {
		t.Errorf("synthesis called %d times, want 1", got)
	}
}

func TestSweep_CompletesJobWithBothApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID, thesisID, antithesisID := h.researchedJob(t, "Should we invest in Apple?")

	// Both dossiers approved, but the completion step never ran.
	for _, id := range []string{thesisID, antithesisID} {
		if _, err := h.dossierRepo.Transition(ctx, id, []string{"awaiting_verification"}, "approved"); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
	}

	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.JobsCompleted != 1 {
		t.Fatalf("expected the job completed, got %+v", result)
	}
	if n, _ := h.queue.Len(ctx); n != 1 {
		t.Errorf("completion should dispatch exactly one synthesis, queue len %d", n)
	}

	h.drain(t)
	if got := h.jobStatus(t, jobID); got != "complete" {
		t.Errorf("expected complete, got %s", got)
	}
	if n := h.reportCount(t, jobID); n != 1 {
		t.Errorf("expected one report, got %d", n)
	}
}

func TestSweep_FailsAbandonedLedgerEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry := &secondary.LedgerRecord{Provider: coreledger.ProviderLLM, CallType: coreledger.CallSynthesis, Request: "prompt"}
	if err := h.ledgerRepo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := h.ledgerRepo.MarkInProgress(ctx, entry.ID); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}
	if _, err := h.db.Exec("UPDATE request_ledger SET created_at = datetime('now', '-2 hours') WHERE id = ?", entry.ID); err != nil {
		t.Fatalf("failed to age entry: %v", err)
	}

	result, err := h.reconcile.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.LedgerEntriesFailed != 1 {
		t.Errorf("expected one abandoned entry closed, got %+v", result)
	}

	got, err := h.ledger.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Status != coreledger.StatusFailed || got.ErrorMessage == "" {
		t.Errorf("expected a failed entry with a reason, got %+v", got)
	}
}
