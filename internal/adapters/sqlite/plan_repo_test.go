package sqlite_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/dialectica/internal/adapters/sqlite"
	"github.com/example/dialectica/internal/ports/secondary"
)

func firstStep(t *testing.T, repo *sqlite.PlanRepository, dossierID string) (*secondary.PlanRecord, []*secondary.StepRecord) {
	t.Helper()
	ctx := context.Background()
	plan, err := repo.GetByDossier(ctx, dossierID)
	if err != nil {
		t.Fatalf("GetByDossier failed: %v", err)
	}
	steps, err := repo.ListSteps(ctx, plan.ID)
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) == 0 {
		t.Fatal("plan has no steps")
	}
	return plan, steps
}

func TestPlanRepository_SaveProxy(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewPlanRepository(testDB)
	ctx := context.Background()

	_, dossiers := seedResearchingJob(t, testDB, 1)
	_, steps := firstStep(t, repo, dossiers[0].ID)

	proxy := `{"unobservable_claim":"moat","deductive_chain":"pricing","observable_proxy":"gross margin"}`
	if err := repo.SaveProxy(ctx, steps[0].ID, "Measure gross margin", "no moat metric", proxy); err != nil {
		t.Fatalf("SaveProxy failed: %v", err)
	}

	got, err := repo.GetStep(ctx, steps[0].ID)
	if err != nil {
		t.Fatalf("GetStep failed: %v", err)
	}
	if got.Description != "Measure gross margin" || got.DataGapIdentified != "no moat metric" || got.ProxyHypothesis != proxy {
		t.Errorf("proxy not persisted: %+v", got)
	}
}

func TestPlanRepository_CompleteStep(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewPlanRepository(testDB)
	evidence := sqlite.NewEvidenceRepository(testDB)
	ctx := context.Background()

	_, dossiers := seedResearchingJob(t, testDB, 2)
	_, steps := firstStep(t, repo, dossiers[0].ID)

	if err := repo.UpdateStepStatus(ctx, steps[0].ID, "in_progress"); err != nil {
		t.Fatalf("UpdateStepStatus failed: %v", err)
	}

	err := repo.CompleteStep(ctx, &secondary.StepCompletion{
		StepID:        steps[0].ID,
		DossierID:     dossiers[0].ID,
		ToolUsed:      "xbrl_financial_fact_retriever",
		ToolInput:     "symbol:AAPL year:2023 concept:Revenue",
		OutputSummary: "fact: AAPL Revenue 2023",
		Evidence: []*secondary.EvidenceRecord{
			{Title: "AAPL Revenue (2023)", Content: "383.29B", Source: "XBRL", Confidence: 0.95, Tags: []string{"financial-fact"}},
			{Title: "Clamped", Content: "c", Source: "s", Confidence: 1.4},
		},
	})
	if err != nil {
		t.Fatalf("CompleteStep failed: %v", err)
	}

	got, _ := repo.GetStep(ctx, steps[0].ID)
	if got.Status != "completed" || got.ToolUsed != "xbrl_financial_fact_retriever" || got.ToolInput == "" {
		t.Errorf("step not completed: %+v", got)
	}

	items, err := evidence.ListByDossier(ctx, dossiers[0].ID)
	if err != nil {
		t.Fatalf("ListByDossier failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 evidence items, got %d", len(items))
	}
	if !strings.HasPrefix(items[0].ID, "EV-") {
		t.Errorf("expected EV- id, got %s", items[0].ID)
	}
	if items[0].StepID != steps[0].ID {
		t.Errorf("evidence not linked to step: %s", items[0].StepID)
	}
	if len(items[0].Tags) != 1 || items[0].Tags[0] != "financial-fact" {
		t.Errorf("tags not round-tripped: %v", items[0].Tags)
	}
	if items[1].Confidence != 1 {
		t.Errorf("confidence not clamped: %v", items[1].Confidence)
	}
	if items[1].Tags == nil || len(items[1].Tags) != 0 {
		t.Errorf("expected empty tag list, got %v", items[1].Tags)
	}

	n, _ := evidence.CountByDossier(ctx, dossiers[1].ID)
	if n != 0 {
		t.Errorf("sibling gained evidence: %d", n)
	}
}

func TestPlanRepository_ConfidenceConstraint(t *testing.T) {
	testDB := setupTestDB(t)
	_, dossiers := seedJob(t, testDB, "q")

	_, err := testDB.Exec(
		"INSERT INTO evidence_items (id, dossier_id, title, content, source, confidence) VALUES ('EV-x', ?, 't', 'c', 's', 1.5)",
		dossiers[0].ID,
	)
	if err == nil {
		t.Fatal("expected CHECK constraint to reject confidence 1.5")
	}
}

func TestPlanRepository_ApplyRevisionFeedback(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewPlanRepository(testDB)
	dossierRepo := sqlite.NewDossierRepository(testDB)
	evidence := sqlite.NewEvidenceRepository(testDB)
	feedback := sqlite.NewFeedbackRepository(testDB)
	ctx := context.Background()

	_, dossiers := seedResearchingJob(t, testDB, 2)
	target, sibling := dossiers[0], dossiers[1]

	for _, d := range dossiers {
		_, steps := firstStep(t, repo, d.ID)
		for _, s := range steps {
			err := repo.CompleteStep(ctx, &secondary.StepCompletion{
				StepID:    s.ID,
				DossierID: d.ID,
				Evidence:  []*secondary.EvidenceRecord{{Title: "t", Content: "c", Source: "s", Confidence: 0.5}},
			})
			if err != nil {
				t.Fatalf("CompleteStep failed: %v", err)
			}
		}
	}

	consumed, err := repo.ApplyRevisionFeedback(ctx, target.ID)
	if err != nil {
		t.Fatalf("ApplyRevisionFeedback failed: %v", err)
	}
	if consumed != 0 {
		t.Fatalf("consumed %d entries with no feedback", consumed)
	}
	if n, _ := evidence.CountByDossier(ctx, target.ID); n != 2 {
		t.Fatalf("evidence cleared without feedback: %d", n)
	}

	setStatus(t, testDB, "dossiers", target.ID, "awaiting_verification")
	if ok, _ := dossierRepo.RequestRevision(ctx, target.ID, "include 2021 data"); !ok {
		t.Fatal("RequestRevision rejected")
	}

	consumed, err = repo.ApplyRevisionFeedback(ctx, target.ID)
	if err != nil {
		t.Fatalf("ApplyRevisionFeedback failed: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("expected 1 entry consumed, got %d", consumed)
	}

	_, steps := firstStep(t, repo, target.ID)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	last := steps[2]
	if last.StepNumber != 3 || last.Status != "pending" || last.Description != "address revision feedback: include 2021 data" {
		t.Errorf("unexpected revision step: %+v", last)
	}
	if n, _ := evidence.CountByDossier(ctx, target.ID); n != 0 {
		t.Errorf("target evidence not cleared: %d", n)
	}
	if n, _ := evidence.CountByDossier(ctx, sibling.ID); n != 2 {
		t.Errorf("sibling evidence changed: %d", n)
	}
	if pending, _ := feedback.ListByDossier(ctx, target.ID, true); len(pending) != 0 {
		t.Errorf("feedback still pending: %+v", pending)
	}

	again, _ := repo.ApplyRevisionFeedback(ctx, target.ID)
	if again != 0 {
		t.Errorf("feedback consumed twice")
	}
}

func TestPlanRepository_ClaimStep(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewPlanRepository(testDB)
	ctx := context.Background()

	_, dossiers := seedResearchingJob(t, testDB, 2)
	_, steps := firstStep(t, repo, dossiers[0].ID)
	id := steps[0].ID

	claimed, err := repo.ClaimStep(ctx, id, time.Hour)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	if claimed, _ := repo.ClaimStep(ctx, id, time.Hour); claimed {
		t.Error("a held step must not be claimed twice")
	}

	age(t, testDB, "research_steps", id)
	if claimed, _ := repo.ClaimStep(ctx, id, time.Hour); !claimed {
		t.Error("a stale in_progress step should be taken over")
	}

	if err := repo.UpdateStepStatus(ctx, id, "failed"); err != nil {
		t.Fatalf("UpdateStepStatus failed: %v", err)
	}
	if claimed, _ := repo.ClaimStep(ctx, id, time.Hour); !claimed {
		t.Error("a failed step should be claimable")
	}

	if err := repo.UpdateStepStatus(ctx, id, "completed"); err != nil {
		t.Fatalf("UpdateStepStatus failed: %v", err)
	}
	age(t, testDB, "research_steps", id)
	if claimed, _ := repo.ClaimStep(ctx, id, time.Hour); claimed {
		t.Error("a completed step must never be claimed")
	}
}
