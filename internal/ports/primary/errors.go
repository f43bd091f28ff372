package primary

import "errors"

// Sentinel errors returned by primary services. Callers test them with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation's status precondition fails.
	ErrInvalidState = errors.New("invalid state")

	// ErrMissingFeedback is returned when a revision carries no feedback.
	ErrMissingFeedback = errors.New("missing feedback")

	// ErrInvalidAction is returned for an unknown review action.
	ErrInvalidAction = errors.New("invalid action")

	// ErrNotReady is returned when synthesis is requested before both
	// dossiers are approved.
	ErrNotReady = errors.New("not ready")

	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid request")
)
