// Package job contains the pure business logic for job lifecycle operations.
// Guards are pure functions that evaluate preconditions without side effects.
package job

import (
	"fmt"
	"strings"
)

// Job statuses.
const (
	StatusPending              = "pending"
	StatusResearching          = "researching"
	StatusAwaitingVerification = "awaiting_verification"
	StatusComplete             = "complete"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CreateJobContext provides context for job creation guards.
type CreateJobContext struct {
	Query string
}

// DecomposeContext provides context for decomposition guards.
type DecomposeContext struct {
	JobID  string
	Status string
}

// SynthesizeContext provides context for synthesis guards.
type SynthesizeContext struct {
	JobID           string
	DossierStatuses []string
}

// CanCreateJob evaluates whether a job can be created.
// Rules:
// - Query must not be blank
func CanCreateJob(ctx CreateJobContext) GuardResult {
	if strings.TrimSpace(ctx.Query) == "" {
		return GuardResult{
			Allowed: false,
			Reason:  "query must not be empty",
		}
	}
	return GuardResult{Allowed: true}
}

// CanDecompose evaluates whether a job still needs decomposition.
// A job that has already left pending was decomposed by an earlier
// delivery of the same unit of work.
func CanDecompose(ctx DecomposeContext) GuardResult {
	if ctx.Status != StatusPending {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("job %s already decomposed (current status: %s)", ctx.JobID, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanSynthesize evaluates whether a job is ready for synthesis.
// Rules:
// - Exactly two dossiers
// - Both dossiers approved
func CanSynthesize(ctx SynthesizeContext) GuardResult {
	if len(ctx.DossierStatuses) != 2 {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("job %s has %d dossiers, expected 2", ctx.JobID, len(ctx.DossierStatuses)),
		}
	}
	for _, status := range ctx.DossierStatuses {
		if status != "approved" {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("job %s is not ready for synthesis: both dossiers must be approved", ctx.JobID),
			}
		}
	}
	return GuardResult{Allowed: true}
}

// IsValidStatus reports whether status is a known job status.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusResearching, StatusAwaitingVerification, StatusComplete:
		return true
	}
	return false
}
