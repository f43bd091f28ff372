package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/dialectica/internal/ports/secondary"
)

// SynthesisRepository implements secondary.SynthesisRepository with SQLite.
type SynthesisRepository struct {
	db *sql.DB
}

// NewSynthesisRepository creates a new SQLite synthesis report repository.
func NewSynthesisRepository(db *sql.DB) *SynthesisRepository {
	return &SynthesisRepository{db: db}
}

var _ secondary.SynthesisRepository = (*SynthesisRepository)(nil)

// Create inserts the job's report. The UNIQUE(job_id) constraint makes a
// second insert for the same job a no-op.
func (r *SynthesisRepository) Create(ctx context.Context, jobID, content string) (bool, error) {
	created := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, "synthesis_reports", "RPT")
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO synthesis_reports (id, job_id, content) VALUES (?, ?, ?) ON CONFLICT(job_id) DO NOTHING",
			id, jobID, content,
		)
		if err != nil {
			return fmt.Errorf("failed to create synthesis report: %w", err)
		}
		created = affected(res)
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetByJob retrieves the job's report.
func (r *SynthesisRepository) GetByJob(ctx context.Context, jobID string) (*secondary.ReportRecord, error) {
	var (
		record    secondary.ReportRecord
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, job_id, content, created_at FROM synthesis_reports WHERE job_id = ?",
		jobID,
	).Scan(&record.ID, &record.JobID, &record.Content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, notFound("synthesis report for job", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get synthesis report: %w", err)
	}
	record.CreatedAt = formatTime(createdAt)
	return &record, nil
}
