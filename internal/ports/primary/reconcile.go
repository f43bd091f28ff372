package primary

import "context"

// ReconcileService defines the primary port for repairing stuck work.
type ReconcileService interface {
	// Sweep re-dispatches or finishes work that was lost between units.
	Sweep(ctx context.Context) (*SweepResult, error)
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	DecomposeRequeued   int
	DossiersFinalized   int
	ResearchRequeued    int
	JobsConverged       int
	JobsCompleted       int
	SynthesisRequeued   int
	LedgerEntriesFailed int
}

// Total returns the number of repairs performed.
func (r *SweepResult) Total() int {
	return r.DecomposeRequeued + r.DossiersFinalized + r.ResearchRequeued +
		r.JobsConverged + r.JobsCompleted + r.SynthesisRequeued + r.LedgerEntriesFailed
}
