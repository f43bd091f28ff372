package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/dialectica/internal/ports/primary"
)

// ReviewAdapter translates CLI operations to ReviewService calls.
type ReviewAdapter struct {
	service primary.ReviewService
	out     io.Writer
}

// NewReviewAdapter creates a new ReviewAdapter with the given service.
func NewReviewAdapter(service primary.ReviewService, out io.Writer) *ReviewAdapter {
	return &ReviewAdapter{
		service: service,
		out:     out,
	}
}

// Approve approves a dossier.
func (a *ReviewAdapter) Approve(ctx context.Context, dossierID string) (*primary.ReviewResponse, error) {
	resp, err := a.service.Review(ctx, primary.ReviewRequest{DossierID: dossierID, Action: "approve"})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "✓ Dossier %s approved\n", dossierID)
	if resp.JobCompleted {
		fmt.Fprintf(a.out, "  Job %s complete, synthesis dispatched\n", resp.JobID)
	} else {
		fmt.Fprintf(a.out, "  Job %s: %s\n", resp.JobID, StatusText(resp.JobStatus))
	}
	return resp, nil
}

// Revise sends a dossier back for research with feedback.
func (a *ReviewAdapter) Revise(ctx context.Context, dossierID, feedback string) (*primary.ReviewResponse, error) {
	resp, err := a.service.Review(ctx, primary.ReviewRequest{DossierID: dossierID, Action: "revise", Feedback: feedback})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "✓ Revision requested for dossier %s\n", dossierID)
	if resp.ResearchQueued {
		fmt.Fprintln(a.out, "  Research re-dispatched")
	}
	return resp, nil
}

// Checklist prints what a reviewer should verify before deciding.
func (a *ReviewAdapter) Checklist(ctx context.Context, dossierID string) error {
	v, err := a.service.GetVerification(ctx, dossierID)
	if err != nil {
		return fmt.Errorf("failed to get verification: %w", err)
	}

	d := v.Dossier
	fmt.Fprintf(a.out, "\nVerification for %s (%s)\n", d.ID, d.Side)
	fmt.Fprintln(a.out, rule)
	fmt.Fprintf(a.out, "Status:   %s\n", StatusText(d.Status))
	fmt.Fprintf(a.out, "Sibling:  %s\n", StatusText(v.SiblingStatus))
	if v.PendingFeedback > 0 {
		fmt.Fprintf(a.out, "Pending feedback: %d\n", v.PendingFeedback)
	}
	if d.Summary != "" {
		fmt.Fprintf(a.out, "\nSummary:\n  %s\n", d.Summary)
	}

	if len(v.ProxySteps) > 0 {
		fmt.Fprintln(a.out, "\nProxy logic to validate:")
		for _, s := range v.ProxySteps {
			fmt.Fprintf(a.out, "  [ ] step %d: %s\n", s.StepNumber, s.Proxy.UnobservableClaim)
			fmt.Fprintf(a.out, "      measured as %s because %s\n", s.Proxy.ObservableProxy, s.Proxy.DeductiveChain)
		}
	}

	if len(v.SpotCheck) > 0 {
		fmt.Fprintln(a.out, "\nEvidence to spot-check:")
		for _, e := range v.SpotCheck {
			fmt.Fprintf(a.out, "  [ ] %s (%s, %.2f)\n", e.Title, e.Source, e.Confidence)
		}
	}

	if len(v.Reasoning) > 0 {
		fmt.Fprintln(a.out, "\nReasoning to audit:")
		for _, s := range v.Reasoning {
			fmt.Fprintf(a.out, "  [ ] step %d via %s\n", s.StepNumber, s.ToolUsed)
			if s.ToolSelectionJustification != "" {
				fmt.Fprintf(a.out, "      tool: %s\n", s.ToolSelectionJustification)
			}
			if s.ToolQueryRationale != "" {
				fmt.Fprintf(a.out, "      query: %s\n", s.ToolQueryRationale)
			}
		}
	}

	fmt.Fprintln(a.out)
	if v.CanSynthesize {
		fmt.Fprintln(a.out, color.New(color.FgGreen).Sprint("Both dossiers approved; synthesis can run."))
	}
	return nil
}
