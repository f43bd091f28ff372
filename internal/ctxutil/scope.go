// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import (
	"context"
	"log/slog"
)

// ScopeKey is the context key for the research scope.
type ScopeKey struct{}

// Scope identifies the job, dossier and step a call is made on behalf of.
// Empty fields are unknown.
type Scope struct {
	JobID     string
	DossierID string
	StepID    string
}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ScopeKey{}, s)
}

// WithStep narrows the scope in ctx to stepID.
func WithStep(ctx context.Context, stepID string) context.Context {
	s := ScopeFromContext(ctx)
	s.StepID = stepID
	return WithScope(ctx, s)
}

// ScopeFromContext returns the scope in ctx, or the zero Scope.
func ScopeFromContext(ctx context.Context) Scope {
	if v, ok := ctx.Value(ScopeKey{}).(Scope); ok {
		return v
	}
	return Scope{}
}

// LogAttrs returns the set fields of the scope in ctx as slog attributes.
func LogAttrs(ctx context.Context) []any {
	s := ScopeFromContext(ctx)
	var attrs []any
	if s.JobID != "" {
		attrs = append(attrs, slog.String("job_id", s.JobID))
	}
	if s.DossierID != "" {
		attrs = append(attrs, slog.String("dossier_id", s.DossierID))
	}
	if s.StepID != "" {
		attrs = append(attrs, slog.String("step_id", s.StepID))
	}
	return attrs
}
