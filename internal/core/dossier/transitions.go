// Package dossier contains the pure business logic for dossier operations.
// This is part of the Functional Core - no I/O, only pure functions.
package dossier

// Status represents the possible states of a dossier.
type Status string

const (
	StatusPending              Status = "pending"
	StatusResearching          Status = "researching"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusApproved             Status = "approved"
	StatusRevisionRequested    Status = "revision_requested"
)

// Side identifies which half of the argument a dossier builds.
type Side string

const (
	SideThesis     Side = "thesis"
	SideAntithesis Side = "antithesis"
)

// Sides returns both sides in creation order.
func Sides() []Side {
	return []Side{SideThesis, SideAntithesis}
}

// Sibling returns the opposing side.
func (s Side) Sibling() Side {
	if s == SideThesis {
		return SideAntithesis
	}
	return SideThesis
}

// Label returns the capitalized side name used in summaries and prompts.
func (s Side) Label() string {
	if s == SideThesis {
		return "Thesis"
	}
	return "Antithesis"
}

// transitions is the dossier lifecycle graph. Approved is terminal; the
// only way back into research is through a revision request.
var transitions = map[Status][]Status{
	StatusPending:              {StatusResearching},
	StatusResearching:          {StatusResearching, StatusAwaitingVerification},
	StatusAwaitingVerification: {StatusApproved, StatusRevisionRequested},
	StatusRevisionRequested:    {StatusResearching},
	StatusApproved:             {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status with an edge into to. Repositories use
// it to build compare-and-swap updates.
func SourcesFor(to Status) []Status {
	var sources []Status
	for _, from := range []Status{
		StatusPending,
		StatusResearching,
		StatusAwaitingVerification,
		StatusRevisionRequested,
		StatusApproved,
	} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// InitialStatus returns the initial status for a new dossier.
func InitialStatus() Status {
	return StatusPending
}

// IsValidStatus reports whether s is a known dossier status.
func IsValidStatus(s string) bool {
	_, ok := transitions[Status(s)]
	return ok
}
