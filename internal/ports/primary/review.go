package primary

import "context"

// ReviewService defines the primary port for the verification gate.
type ReviewService interface {
	// Review applies an approve or revise decision to a dossier awaiting
	// verification.
	Review(ctx context.Context, req ReviewRequest) (*ReviewResponse, error)

	// GetVerification returns the checklist a reviewer works through.
	GetVerification(ctx context.Context, dossierID string) (*Verification, error)
}

// ReviewRequest contains parameters for a review decision.
type ReviewRequest struct {
	DossierID string
	Action    string // approve | revise
	Feedback  string // required for revise
}

// ReviewResponse contains the result of a review decision.
type ReviewResponse struct {
	DossierID     string
	DossierStatus string
	JobID         string
	JobStatus     string

	// JobCompleted is true only for the decision that completed the job;
	// that decision is the one that dispatched synthesis.
	JobCompleted bool

	// ResearchQueued is true when a revision re-dispatched research.
	ResearchQueued bool
}

// Verification is the reviewer's checklist for one dossier.
type Verification struct {
	Dossier         *Dossier
	SiblingStatus   string
	ProxySteps      []*Step
	SpotCheck       []*Evidence
	Reasoning       []*Step
	CanSynthesize   bool
	PendingFeedback int
}
