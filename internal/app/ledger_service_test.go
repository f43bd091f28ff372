package app

import (
	"context"
	"errors"
	"testing"
	"time"

	coreledger "github.com/example/dialectica/internal/core/ledger"
	"github.com/example/dialectica/internal/ctxutil"
	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/ports/secondary"
)

// stalledLLM never answers before its context expires.
type stalledLLM struct{}

func (stalledLLM) Generate(ctx context.Context, _ string, _ secondary.GenerationParams) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (stalledLLM) Name() string { return "stalled" }

func TestListEntries_Filters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID, thesisID, _ := h.researchedJob(t, "Should we invest in Apple?")

	all, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{JobID: jobID})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected ledger entries for the job")
	}
	for _, e := range all {
		if e.JobID != jobID {
			t.Errorf("entry %s belongs to job %q", e.ID, e.JobID)
		}
		if e.Status != coreledger.StatusCompleted {
			t.Errorf("entry %s: expected completed, got %s", e.ID, e.Status)
		}
	}

	tools, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{DossierID: thesisID, Provider: coreledger.ProviderTool})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(tools) == 0 {
		t.Fatal("expected tool entries for the thesis")
	}
	for _, e := range tools {
		if e.Provider != coreledger.ProviderTool || e.DossierID != thesisID {
			t.Errorf("filter leaked entry %+v", e)
		}
		if e.CallType == coreledger.CallExecute && (e.ToolName == "" || e.StepID == "") {
			t.Errorf("execute entry %s should carry tool and step: %+v", e.ID, e)
		}
	}

	limited, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{JobID: jobID, Limit: 2})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 entries, got %d", len(limited))
	}
}

func TestListEntries_RejectsUnknownFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{Provider: "http"}); !errors.Is(err, primary.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for provider, got %v", err)
	}
	if _, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{Status: "lost"}); !errors.Is(err, primary.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for status, got %v", err)
	}
}

func TestGetEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID, _, _ := h.researchedJob(t, "Should we invest in Apple?")

	entries, err := h.ledger.ListEntries(ctx, primary.LedgerFilters{JobID: jobID, Limit: 1})
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListEntries: %v (%d entries)", err, len(entries))
	}

	got, err := h.ledger.GetEntry(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.ID != entries[0].ID || got.Request == "" {
		t.Errorf("unexpected entry %+v", got)
	}

	if _, err := h.ledger.GetEntry(ctx, "REQ-missing"); !errors.Is(err, primary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrackedLLM_TimeoutIsRecorded(t *testing.T) {
	h := newHarness(t)
	tracked := NewTrackedLLM(stalledLLM{}, h.ledgerRepo, secondary.GenerationParams{}, 50*time.Millisecond)
	ctx := ctxutil.WithScope(context.Background(), ctxutil.Scope{JobID: "JOB-001"})

	_, err := tracked.Generate(ctx, coreledger.CallSynthesis, "write the synthesis")
	if !errors.Is(err, secondary.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the deadline in the chain, got %v", err)
	}

	entries, err := h.ledger.ListEntries(context.Background(), primary.LedgerFilters{JobID: "JOB-001"})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Status != coreledger.StatusFailed || entries[0].CompletedAt == "" {
		t.Errorf("expected a closed failed entry, got %+v", entries[0])
	}
}

// stuckLedger cannot move entries to in_progress.
type stuckLedger struct {
	secondary.LedgerRepository
}

func (stuckLedger) MarkInProgress(context.Context, string) error {
	return errors.New("database is locked")
}

func TestTrackedLLM_UnstartedEntryIsClosed(t *testing.T) {
	h := newHarness(t)
	tracked := NewTrackedLLM(h.llm, stuckLedger{h.ledgerRepo}, secondary.GenerationParams{}, time.Second)
	ctx := ctxutil.WithScope(context.Background(), ctxutil.Scope{JobID: "JOB-001"})

	_, err := tracked.Generate(ctx, coreledger.CallSynthesis, "final dialectical synthesis")
	if err == nil || errors.Is(err, secondary.ErrProvider) {
		t.Fatalf("expected a ledger error, got %v", err)
	}
	if got := h.llm.callCount(coreledger.CallSynthesis); got != 0 {
		t.Errorf("provider called %d times without a ledger entry", got)
	}

	entries, err := h.ledger.ListEntries(context.Background(), primary.LedgerFilters{JobID: "JOB-001"})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Status != coreledger.StatusFailed || entries[0].ErrorMessage != "database is locked" {
		t.Errorf("expected the entry closed as failed, got %+v", entries[0])
	}
}

func TestTrackedTools_EmptyManifestIsProviderFailure(t *testing.T) {
	h := newHarness(t)
	tracked := NewTrackedTools(emptyTools{}, h.ledgerRepo)

	if _, err := tracked.Manifest(context.Background()); !errors.Is(err, secondary.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}

	entries, err := h.ledger.ListEntries(context.Background(), primary.LedgerFilters{Status: coreledger.StatusFailed})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].CallType != coreledger.CallManifest {
		t.Errorf("expected one failed manifest entry, got %+v", entries)
	}
}

type emptyTools struct{}

func (emptyTools) Manifest(context.Context) ([]secondary.ToolDescriptor, error) { return nil, nil }

func (emptyTools) Execute(context.Context, string, string) (*secondary.ToolOutput, error) {
	return nil, errors.New("no tools")
}
