package primary

import "context"

// SynthesisService defines the primary port for the final report.
type SynthesisService interface {
	// Synthesize produces the job's report once both dossiers are approved.
	// An existing report is returned as is.
	Synthesize(ctx context.Context, jobID string) (*Report, error)

	// GetReport retrieves the job's report.
	GetReport(ctx context.Context, jobID string) (*Report, error)
}

// Report represents a synthesis report at the port boundary.
type Report struct {
	ID        string
	JobID     string
	Content   string
	CreatedAt string
}
