// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by repositories when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// JobRepository defines the secondary port for job persistence.
//
// Status-changing methods are compare-and-swap updates: they report whether
// this call performed the transition, and a false result with a nil error
// means another caller got there first.
type JobRepository interface {
	// Create allocates a job with its two dossiers and their empty plans in
	// one transaction.
	Create(ctx context.Context, job *NewJob) (*JobRecord, error)

	// GetByID retrieves a job by its ID.
	GetByID(ctx context.Context, id string) (*JobRecord, error)

	// List retrieves jobs matching the given filters, newest first.
	List(ctx context.Context, filters JobFilters) ([]*JobRecord, error)

	// ApplyDecomposition writes the refined missions and steps, moves both
	// dossiers to researching, and moves the job pending -> researching.
	// Nothing is written unless the job is still pending.
	ApplyDecomposition(ctx context.Context, jobID string, sides []*SideDecomposition) (bool, error)

	// MarkAwaitingVerification is the convergence check: researching ->
	// awaiting_verification once no dossier of the job is outside
	// awaiting_verification.
	MarkAwaitingVerification(ctx context.Context, jobID string) (bool, error)

	// MarkComplete moves the job to complete once every dossier is approved.
	MarkComplete(ctx context.Context, jobID string) (bool, error)

	// ListStale returns jobs in status whose updated_at is older than olderThan.
	ListStale(ctx context.Context, status string, olderThan time.Duration) ([]*JobRecord, error)

	// ListCompleteWithoutReport returns jobs complete for longer than
	// olderThan that have no synthesis report.
	ListCompleteWithoutReport(ctx context.Context, olderThan time.Duration) ([]*JobRecord, error)
}

// NewJob carries what is needed to allocate a job.
type NewJob struct {
	Query    string
	Missions map[string]string // side -> initial mission
}

// JobRecord represents a job as stored in persistence.
type JobRecord struct {
	ID        string
	Query     string
	Status    string
	CreatedAt string
	UpdatedAt string
}

// JobFilters contains filter options for querying jobs.
type JobFilters struct {
	Status string
	Limit  int
}

// SideDecomposition is the decomposition output for one side.
type SideDecomposition struct {
	Side    string
	Mission string
	Steps   []*NewStep
}

// NewStep is a planned step before it has an ID.
type NewStep struct {
	Description                string
	Tool                       string
	ToolSelectionJustification string
	ToolQueryRationale         string
}

// DossierRepository defines the secondary port for dossier persistence.
type DossierRepository interface {
	// GetByID retrieves a dossier by its ID.
	GetByID(ctx context.Context, id string) (*DossierRecord, error)

	// ListByJob returns the job's dossiers, thesis first.
	ListByJob(ctx context.Context, jobID string) ([]*DossierRecord, error)

	// Transition moves a dossier to `to` if its current status is one of `from`.
	Transition(ctx context.Context, id string, from []string, to string) (bool, error)

	// Finalize stores the summary and moves researching -> awaiting_verification.
	Finalize(ctx context.Context, id, summary string) (bool, error)

	// RequestRevision records feedback and moves awaiting_verification ->
	// revision_requested in one transaction.
	RequestRevision(ctx context.Context, id, feedback string) (bool, error)

	// ListStale returns dossiers in any of statuses whose updated_at is
	// older than olderThan.
	ListStale(ctx context.Context, statuses []string, olderThan time.Duration) ([]*DossierRecord, error)

	// ListByStatus returns all dossiers in status.
	ListByStatus(ctx context.Context, status string) ([]*DossierRecord, error)
}

// DossierRecord represents a dossier as stored in persistence.
type DossierRecord struct {
	ID        string
	JobID     string
	Side      string
	Mission   string
	Status    string
	Summary   string
	CreatedAt string
	UpdatedAt string
}

// PlanRepository defines the secondary port for research plans and steps.
type PlanRepository interface {
	// GetByDossier retrieves the dossier's plan.
	GetByDossier(ctx context.Context, dossierID string) (*PlanRecord, error)

	// ListSteps returns the plan's steps in step_number order.
	ListSteps(ctx context.Context, planID string) ([]*StepRecord, error)

	// GetStep retrieves a step by its ID.
	GetStep(ctx context.Context, id string) (*StepRecord, error)

	// UpdateStepStatus sets a step's status.
	UpdateStepStatus(ctx context.Context, id, status string) error

	// ClaimStep moves a pending or failed step to in_progress. A step
	// already in_progress is only taken over once its updated_at is older
	// than staleAfter. Returns false if another run holds the step.
	ClaimStep(ctx context.Context, id string, staleAfter time.Duration) (bool, error)

	// SaveProxy stores the data gap and proxy and rewrites the description.
	SaveProxy(ctx context.Context, id, description, dataGap, proxyJSON string) error

	// CompleteStep persists the step's evidence, records the tool call and
	// marks the step completed in one transaction.
	CompleteStep(ctx context.Context, completion *StepCompletion) error

	// ApplyRevisionFeedback consumes the dossier's unprocessed feedback: it
	// marks the feedback processed, appends one step per feedback entry and
	// clears the dossier's evidence in one transaction. Returns the number
	// of feedback entries consumed.
	ApplyRevisionFeedback(ctx context.Context, dossierID string) (int, error)
}

// PlanRecord represents a research plan as stored in persistence.
type PlanRecord struct {
	ID        string
	DossierID string
	CreatedAt string
}

// StepRecord represents a research step as stored in persistence.
type StepRecord struct {
	ID                         string
	PlanID                     string
	StepNumber                 int
	Description                string
	Status                     string
	ToolUsed                   string
	ToolSelectionJustification string
	ToolQueryRationale         string
	DataGapIdentified          string
	ProxyHypothesis            string // JSON, empty when the step needed no proxy
	ToolInput                  string
	ToolOutputSummary          string
	CreatedAt                  string
	UpdatedAt                  string
}

// StepCompletion is the outcome of executing one step.
type StepCompletion struct {
	StepID        string
	DossierID     string
	ToolUsed      string
	ToolInput     string
	OutputSummary string
	Evidence      []*EvidenceRecord
}

// EvidenceRepository defines the secondary port for evidence reads.
// Evidence is written through PlanRepository.CompleteStep.
type EvidenceRepository interface {
	// ListByDossier returns the dossier's evidence in insertion order.
	ListByDossier(ctx context.Context, dossierID string) ([]*EvidenceRecord, error)

	// CountByDossier returns the number of evidence items for the dossier.
	CountByDossier(ctx context.Context, dossierID string) (int, error)
}

// EvidenceRecord represents an evidence item as stored in persistence.
type EvidenceRecord struct {
	ID         string
	DossierID  string
	StepID     string
	Title      string
	Content    string
	Source     string
	Confidence float64
	Tags       []string
	CreatedAt  string
}

// FeedbackRepository defines the secondary port for revision feedback reads.
type FeedbackRepository interface {
	// ListByDossier returns the dossier's feedback, oldest first.
	ListByDossier(ctx context.Context, dossierID string, pendingOnly bool) ([]*FeedbackRecord, error)
}

// FeedbackRecord represents revision feedback as stored in persistence.
type FeedbackRecord struct {
	ID          string
	DossierID   string
	Feedback    string
	CreatedAt   string
	ProcessedAt string
}

// SynthesisRepository defines the secondary port for synthesis reports.
type SynthesisRepository interface {
	// Create inserts the job's report unless one already exists. Returns
	// false when a report was already present.
	Create(ctx context.Context, jobID, content string) (bool, error)

	// GetByJob retrieves the job's report.
	GetByJob(ctx context.Context, jobID string) (*ReportRecord, error)
}

// ReportRecord represents a synthesis report as stored in persistence.
type ReportRecord struct {
	ID        string
	JobID     string
	Content   string
	CreatedAt string
}

// LedgerRepository defines the secondary port for the provider call ledger.
type LedgerRepository interface {
	// Create records a pending entry.
	Create(ctx context.Context, entry *LedgerRecord) error

	// MarkInProgress stamps started_at and moves pending -> in_progress.
	MarkInProgress(ctx context.Context, id string) error

	// Complete finalizes an entry with the provider's response.
	Complete(ctx context.Context, id, response string) error

	// Fail finalizes an entry with an error message.
	Fail(ctx context.Context, id, errorMessage string) error

	// GetByID retrieves an entry.
	GetByID(ctx context.Context, id string) (*LedgerRecord, error)

	// List retrieves entries matching the given filters, newest first.
	List(ctx context.Context, filters LedgerFilters) ([]*LedgerRecord, error)

	// FailStale fails unfinished entries older than olderThan, returning how
	// many were closed.
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// LedgerRecord represents a provider call as stored in persistence.
type LedgerRecord struct {
	ID           string
	Provider     string
	JobID        string
	DossierID    string
	StepID       string
	CallType     string
	ToolName     string
	Status       string
	Request      string
	Response     string
	ErrorMessage string
	StartedAt    string
	CompletedAt  string
	CreatedAt    string
}

// LedgerFilters contains filter options for querying the ledger.
type LedgerFilters struct {
	JobID     string
	DossierID string
	Provider  string
	Status    string
	Limit     int
}
