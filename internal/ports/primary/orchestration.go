package primary

import "context"

// OrchestrationService defines the primary port for the job lifecycle.
type OrchestrationService interface {
	// CreateJob allocates a job with its two dossiers and dispatches decomposition.
	CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error)

	// Decompose plans both sides of a pending job and dispatches research.
	// A job that is no longer pending is left untouched.
	Decompose(ctx context.Context, jobID string) error

	// OnResearchUnitFinished runs the convergence check for the dossier's
	// job. Returns true if this call moved the job to awaiting_verification.
	OnResearchUnitFinished(ctx context.Context, dossierID string) (bool, error)

	// GetJob retrieves a job with its dossiers.
	GetJob(ctx context.Context, jobID string) (*JobDetail, error)

	// ListJobs lists jobs with optional filters.
	ListJobs(ctx context.Context, filters JobFilters) ([]*Job, error)

	// GetDossier retrieves a dossier with its steps, evidence and feedback.
	GetDossier(ctx context.Context, dossierID string) (*DossierDetail, error)
}

// CreateJobRequest contains parameters for creating a job.
type CreateJobRequest struct {
	Query string `validate:"required"`
}

// CreateJobResponse contains the result of creating a job.
type CreateJobResponse struct {
	JobID string
	Job   *Job
}

// Job represents a job at the port boundary.
type Job struct {
	ID        string
	Query     string
	Status    string
	CreatedAt string
	UpdatedAt string
}

// JobDetail is a job with its dossiers, thesis first.
type JobDetail struct {
	Job       *Job
	Dossiers  []*Dossier
	HasReport bool
}

// JobFilters contains filter options for listing jobs.
type JobFilters struct {
	Status string
	Limit  int
}

// Dossier represents a dossier at the port boundary.
type Dossier struct {
	ID        string
	JobID     string
	Side      string
	Mission   string
	Status    string
	Summary   string
	CreatedAt string
	UpdatedAt string
}

// DossierDetail is a dossier with its plan contents.
type DossierDetail struct {
	Dossier  *Dossier
	PlanID   string
	Steps    []*Step
	Evidence []*Evidence
	Feedback []*Feedback
}

// Step represents a research step at the port boundary.
type Step struct {
	ID                         string
	StepNumber                 int
	Description                string
	Status                     string
	ToolUsed                   string
	ToolSelectionJustification string
	ToolQueryRationale         string
	DataGapIdentified          string
	Proxy                      *ProxyHypothesis
	ToolInput                  string
	ToolOutputSummary          string
}

// ProxyHypothesis bridges an unobservable claim to an observable proxy.
type ProxyHypothesis struct {
	UnobservableClaim string
	DeductiveChain    string
	ObservableProxy   string
}

// Evidence represents an evidence item at the port boundary.
type Evidence struct {
	ID         string
	StepID     string
	Title      string
	Content    string
	Source     string
	Confidence float64
	Tags       []string
	CreatedAt  string
}

// Feedback represents revision feedback at the port boundary.
type Feedback struct {
	ID          string
	Feedback    string
	CreatedAt   string
	ProcessedAt string
}
