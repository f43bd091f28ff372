package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/dialectica/internal/ports/secondary"
)

// EvidenceRepository implements secondary.EvidenceRepository with SQLite.
type EvidenceRepository struct {
	db *sql.DB
}

// NewEvidenceRepository creates a new SQLite evidence repository.
func NewEvidenceRepository(db *sql.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

var _ secondary.EvidenceRepository = (*EvidenceRepository)(nil)

// ListByDossier returns the dossier's evidence in insertion order.
func (r *EvidenceRepository) ListByDossier(ctx context.Context, dossierID string) ([]*secondary.EvidenceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, dossier_id, step_id, title, content, source, confidence, tags, created_at
		FROM evidence_items WHERE dossier_id = ? ORDER BY rowid`,
		dossierID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var items []*secondary.EvidenceRecord
	for rows.Next() {
		var (
			record    secondary.EvidenceRecord
			stepID    sql.NullString
			tags      string
			createdAt time.Time
		)
		if err := rows.Scan(&record.ID, &record.DossierID, &stepID, &record.Title, &record.Content,
			&record.Source, &record.Confidence, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for evidence %s: %w", record.ID, err)
		}
		record.StepID = stepID.String
		record.CreatedAt = formatTime(createdAt)
		items = append(items, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	return items, nil
}

// CountByDossier returns the number of evidence items for the dossier.
func (r *EvidenceRepository) CountByDossier(ctx context.Context, dossierID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM evidence_items WHERE dossier_id = ?", dossierID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count evidence: %w", err)
	}
	return n, nil
}
