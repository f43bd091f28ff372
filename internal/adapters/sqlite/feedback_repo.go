package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/dialectica/internal/ports/secondary"
)

// FeedbackRepository implements secondary.FeedbackRepository with SQLite.
type FeedbackRepository struct {
	db *sql.DB
}

// NewFeedbackRepository creates a new SQLite revision feedback repository.
func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

var _ secondary.FeedbackRepository = (*FeedbackRepository)(nil)

// ListByDossier returns the dossier's feedback, oldest first.
func (r *FeedbackRepository) ListByDossier(ctx context.Context, dossierID string, pendingOnly bool) ([]*secondary.FeedbackRecord, error) {
	query := "SELECT id, dossier_id, feedback, created_at, processed_at FROM revision_feedback WHERE dossier_id = ?"
	if pendingOnly {
		query += " AND processed_at IS NULL"
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revision feedback: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.FeedbackRecord
	for rows.Next() {
		var (
			record      secondary.FeedbackRecord
			createdAt   time.Time
			processedAt sql.NullTime
		)
		if err := rows.Scan(&record.ID, &record.DossierID, &record.Feedback, &createdAt, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision feedback: %w", err)
		}
		record.CreatedAt = formatTime(createdAt)
		record.ProcessedAt = formatNullTime(processedAt)
		entries = append(entries, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list revision feedback: %w", err)
	}
	return entries, nil
}
