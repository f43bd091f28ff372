// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/dialectica/internal/ports/primary"
)

const rule = "────────────────────────────────────────────────────────────────"

// JobAdapter translates CLI operations to OrchestrationService calls.
type JobAdapter struct {
	service primary.OrchestrationService
	out     io.Writer
}

// NewJobAdapter creates a new JobAdapter with the given service.
func NewJobAdapter(service primary.OrchestrationService, out io.Writer) *JobAdapter {
	return &JobAdapter{
		service: service,
		out:     out,
	}
}

// Create starts a job for query and returns its ID.
func (a *JobAdapter) Create(ctx context.Context, query string) (string, error) {
	resp, err := a.service.CreateJob(ctx, primary.CreateJobRequest{Query: query})
	if err != nil {
		return "", err
	}

	fmt.Fprintf(a.out, "✓ Created job %s: %s\n", resp.JobID, resp.Job.Query)
	return resp.JobID, nil
}

// List lists jobs with an optional status filter.
func (a *JobAdapter) List(ctx context.Context, status string, limit int) error {
	jobs, err := a.service.ListJobs(ctx, primary.JobFilters{Status: status, Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(a.out, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tQUERY")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, StatusText(j.Status), j.CreatedAt, truncate(j.Query, 60))
	}
	return w.Flush()
}

// Show displays a job with both dossiers.
func (a *JobAdapter) Show(ctx context.Context, jobID string) (*primary.JobDetail, error) {
	detail, err := a.service.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	j := detail.Job
	fmt.Fprintf(a.out, "\nJob:     %s\n", j.ID)
	fmt.Fprintf(a.out, "Query:   %s\n", j.Query)
	fmt.Fprintf(a.out, "Status:  %s\n", StatusText(j.Status))
	fmt.Fprintf(a.out, "Created: %s\n", j.CreatedAt)
	if detail.HasReport {
		fmt.Fprintf(a.out, "Report:  available (dialectica report show %s)\n", j.ID)
	}
	fmt.Fprintln(a.out)

	if len(detail.Dossiers) > 0 {
		fmt.Fprintln(a.out, "Dossiers:")
		for _, d := range detail.Dossiers {
			fmt.Fprintf(a.out, "  - %s [%s] %s\n", d.ID, StatusText(d.Status), d.Side)
			if d.Mission != "" {
				fmt.Fprintf(a.out, "      %s\n", truncate(d.Mission, 100))
			}
		}
		fmt.Fprintln(a.out)
	}

	return detail, nil
}

// ShowDossier displays a dossier's plan, evidence and feedback.
func (a *JobAdapter) ShowDossier(ctx context.Context, dossierID string, full bool) error {
	detail, err := a.service.GetDossier(ctx, dossierID)
	if err != nil {
		return fmt.Errorf("failed to get dossier: %w", err)
	}

	d := detail.Dossier
	fmt.Fprintf(a.out, "\nDossier: %s (%s)\n", d.ID, d.Side)
	fmt.Fprintf(a.out, "Job:     %s\n", d.JobID)
	fmt.Fprintf(a.out, "Status:  %s\n", StatusText(d.Status))
	fmt.Fprintf(a.out, "Mission: %s\n", d.Mission)
	if d.Summary != "" {
		fmt.Fprintf(a.out, "Summary: %s\n", d.Summary)
	}
	fmt.Fprintln(a.out)

	fmt.Fprintln(a.out, "Plan:")
	fmt.Fprintln(a.out, rule)
	for _, s := range detail.Steps {
		fmt.Fprintf(a.out, "%2d. [%s] %s\n", s.StepNumber, StatusText(s.Status), s.Description)
		if s.Proxy != nil {
			fmt.Fprintf(a.out, "    proxy: %s -> %s\n", s.Proxy.UnobservableClaim, s.Proxy.ObservableProxy)
		}
		if s.ToolUsed != "" {
			fmt.Fprintf(a.out, "    tool:  %s %s\n", s.ToolUsed, s.ToolInput)
		}
		if full && s.ToolSelectionJustification != "" {
			fmt.Fprintf(a.out, "    why:   %s\n", s.ToolSelectionJustification)
		}
	}
	fmt.Fprintln(a.out)

	if len(detail.Evidence) > 0 {
		fmt.Fprintf(a.out, "Evidence (%d):\n", len(detail.Evidence))
		fmt.Fprintln(a.out, rule)
		for _, e := range detail.Evidence {
			fmt.Fprintf(a.out, "  %s  %.2f  %s\n", e.Source, e.Confidence, e.Title)
			if full {
				fmt.Fprintf(a.out, "      %s\n", truncate(e.Content, 200))
			}
		}
		fmt.Fprintln(a.out)
	}

	if len(detail.Feedback) > 0 {
		fmt.Fprintln(a.out, "Feedback:")
		for _, f := range detail.Feedback {
			state := "pending"
			if f.ProcessedAt != "" {
				state = "processed " + f.ProcessedAt
			}
			fmt.Fprintf(a.out, "  - %s (%s)\n", f.Feedback, state)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

// StatusText colors a job, dossier, step or ledger status.
func StatusText(status string) string {
	switch status {
	case "approved", "complete", "completed":
		return color.New(color.FgGreen).Sprint(status)
	case "awaiting_verification":
		return color.New(color.FgCyan).Sprint(status)
	case "revision_requested", "in_progress", "researching":
		return color.New(color.FgYellow).Sprint(status)
	case "failed":
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
