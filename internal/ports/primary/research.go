package primary

import "context"

// ResearchService defines the primary port for executing a dossier's plan.
type ResearchService interface {
	// RunPlan executes every step of the dossier's plan that has not
	// completed, consuming pending revision feedback first, then finalizes
	// the dossier for review. Re-running a finished dossier is a no-op.
	RunPlan(ctx context.Context, dossierID string) error

	// ExecuteStep runs the proxy framework and the tool call for one step.
	ExecuteStep(ctx context.Context, dossierID, stepID string) (*StepOutcome, error)
}

// StepOutcome summarizes one executed step.
type StepOutcome struct {
	StepID        string
	Tool          string
	Query         string
	UsedProxy     bool
	UsedFallback  bool
	EvidenceCount int
}
