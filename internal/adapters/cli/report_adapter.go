package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/example/dialectica/internal/ports/primary"
)

// ReportAdapter translates CLI operations to SynthesisService calls.
type ReportAdapter struct {
	service primary.SynthesisService
	out     io.Writer
}

// NewReportAdapter creates a new ReportAdapter with the given service.
func NewReportAdapter(service primary.SynthesisService, out io.Writer) *ReportAdapter {
	return &ReportAdapter{
		service: service,
		out:     out,
	}
}

// Show prints the job's report.
func (a *ReportAdapter) Show(ctx context.Context, jobID string) error {
	report, err := a.service.GetReport(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get report: %w", err)
	}

	fmt.Fprintf(a.out, "%s (job %s, %s)\n\n", report.ID, report.JobID, report.CreatedAt)
	fmt.Fprintln(a.out, strings.TrimSpace(report.Content))
	return nil
}

// LedgerAdapter translates CLI operations to LedgerService calls.
type LedgerAdapter struct {
	service primary.LedgerService
	out     io.Writer
}

// NewLedgerAdapter creates a new LedgerAdapter with the given service.
func NewLedgerAdapter(service primary.LedgerService, out io.Writer) *LedgerAdapter {
	return &LedgerAdapter{
		service: service,
		out:     out,
	}
}

// List prints ledger entries matching filters.
func (a *LedgerAdapter) List(ctx context.Context, filters primary.LedgerFilters) error {
	entries, err := a.service.ListEntries(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to list ledger entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No ledger entries found")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tCALL\tSTATUS\tDOSSIER\tCREATED")
	for _, e := range entries {
		call := e.CallType
		if e.ToolName != "" {
			call += ":" + e.ToolName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Provider, call, StatusText(e.Status), e.DossierID, e.CreatedAt)
	}
	return w.Flush()
}

// Show prints one ledger entry in full.
func (a *LedgerAdapter) Show(ctx context.Context, id string) error {
	e, err := a.service.GetEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get ledger entry: %w", err)
	}

	fmt.Fprintf(a.out, "\nEntry:    %s\n", e.ID)
	fmt.Fprintf(a.out, "Provider: %s\n", e.Provider)
	fmt.Fprintf(a.out, "Call:     %s %s\n", e.CallType, e.ToolName)
	fmt.Fprintf(a.out, "Status:   %s\n", StatusText(e.Status))
	fmt.Fprintf(a.out, "Scope:    job=%s dossier=%s step=%s\n", e.JobID, e.DossierID, e.StepID)
	fmt.Fprintf(a.out, "Started:  %s\n", e.StartedAt)
	fmt.Fprintf(a.out, "Finished: %s\n", e.CompletedAt)
	fmt.Fprintf(a.out, "\nRequest:\n%s\n", e.Request)
	if e.Response != "" {
		fmt.Fprintf(a.out, "\nResponse:\n%s\n", e.Response)
	}
	if e.ErrorMessage != "" {
		fmt.Fprintf(a.out, "\nError: %s\n", e.ErrorMessage)
	}
	return nil
}
