package primary

import "context"

// LedgerService defines the primary port for reading the provider call ledger.
type LedgerService interface {
	// ListEntries lists ledger entries, newest first.
	ListEntries(ctx context.Context, filters LedgerFilters) ([]*LedgerEntry, error)

	// GetEntry retrieves one entry.
	GetEntry(ctx context.Context, id string) (*LedgerEntry, error)
}

// LedgerEntry represents one provider call.
type LedgerEntry struct {
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

// LedgerFilters contains filter options for listing ledger entries.
type LedgerFilters struct {
	JobID     string
	DossierID string
	Provider  string
	Status    string
	Limit     int
}
