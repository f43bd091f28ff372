package dossier

import (
	"fmt"
	"strings"
)

// Review actions.
const (
	ActionApprove = "approve"
	ActionRevise  = "revise"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
	// Kind classifies a denial so callers can map it to a typed error.
	Kind    DenialKind
}

// DenialKind classifies why a guard denied an operation.
type DenialKind int

const (
	DenialNone DenialKind = iota
	DenialInvalidState
	DenialMissingFeedback
	DenialInvalidAction
)

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// ReviewContext provides context for review guards.
type ReviewContext struct {
	DossierID string
	Status    Status
	Action    string
	Feedback  string
}

// StartResearchContext provides context for research-start guards.
type StartResearchContext struct {
	DossierID string
	Status    Status
}

// CanReview evaluates whether a review decision can be applied.
// Rules:
// - Action must be approve or revise
// - Dossier must be awaiting verification
// - Revise requires non-empty feedback
func CanReview(ctx ReviewContext) GuardResult {
	if ctx.Action != ActionApprove && ctx.Action != ActionRevise {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown review action %q (expected approve or revise)", ctx.Action),
			Kind:    DenialInvalidAction,
		}
	}

	if ctx.Status != StatusAwaitingVerification {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("dossier %s is not awaiting verification (current status: %s)", ctx.DossierID, ctx.Status),
			Kind:    DenialInvalidState,
		}
	}

	if ctx.Action == ActionRevise && strings.TrimSpace(ctx.Feedback) == "" {
		return GuardResult{
			Allowed: false,
			Reason:  "revision feedback is required",
			Kind:    DenialMissingFeedback,
		}
	}

	return GuardResult{Allowed: true}
}

// CanStartResearch evaluates whether a research run should proceed.
// Denials here are not failures: they identify a duplicate delivery of a
// research unit whose work has already been done.
// Rules:
// - Status must have an edge into researching
func CanStartResearch(ctx StartResearchContext) GuardResult {
	if !CanTransition(ctx.Status, StatusResearching) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("dossier %s needs no research (current status: %s)", ctx.DossierID, ctx.Status),
			Kind:    DenialInvalidState,
		}
	}
	return GuardResult{Allowed: true}
}
