package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/dialectica/internal/ports/secondary"
)

// DossierRepository implements secondary.DossierRepository with SQLite.
type DossierRepository struct {
	db *sql.DB
}

// NewDossierRepository creates a new SQLite dossier repository.
func NewDossierRepository(db *sql.DB) *DossierRepository {
	return &DossierRepository{db: db}
}

var _ secondary.DossierRepository = (*DossierRepository)(nil)

const dossierColumns = "id, job_id, side, mission, status, summary, created_at, updated_at"

// GetByID retrieves a dossier by its ID.
func (r *DossierRepository) GetByID(ctx context.Context, id string) (*secondary.DossierRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+dossierColumns+" FROM dossiers WHERE id = ?", id)
	record, err := scanDossier(row)
	if err == sql.ErrNoRows {
		return nil, notFound("dossier", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dossier: %w", err)
	}
	return record, nil
}

// ListByJob returns the job's dossiers, thesis first.
func (r *DossierRepository) ListByJob(ctx context.Context, jobID string) ([]*secondary.DossierRecord, error) {
	return r.queryDossiers(ctx,
		"SELECT "+dossierColumns+" FROM dossiers WHERE job_id = ? ORDER BY CASE side WHEN 'thesis' THEN 0 ELSE 1 END",
		jobID,
	)
}

// Transition moves a dossier to `to` if its current status is one of `from`.
func (r *DossierRepository) Transition(ctx context.Context, id string, from []string, to string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := append([]any{to, id}, stringArgs(from)...)
	res, err := r.db.ExecContext(ctx,
		"UPDATE dossiers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status IN ("+placeholders(len(from))+")",
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update dossier status: %w", err)
	}
	return affected(res), nil
}

// Finalize stores the summary and hands the dossier to review.
func (r *DossierRepository) Finalize(ctx context.Context, id, summary string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dossiers SET summary = ?, status = 'awaiting_verification', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'researching'`,
		summary, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize dossier: %w", err)
	}
	return affected(res), nil
}

// RequestRevision records feedback and reopens the dossier. The feedback row
// is only kept if the status transition succeeds.
func (r *DossierRepository) RequestRevision(ctx context.Context, id, feedback string) (bool, error) {
	applied := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE dossiers SET status = 'revision_requested', updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = 'awaiting_verification'`,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to request revision: %w", err)
		}
		if !affected(res) {
			return nil
		}

		feedbackID, err := nextID(ctx, tx, "revision_feedback", "FB")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO revision_feedback (id, dossier_id, feedback) VALUES (?, ?, ?)",
			feedbackID, id, feedback,
		); err != nil {
			return fmt.Errorf("failed to record revision feedback: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ListStale returns dossiers idle in one of statuses for longer than olderThan.
func (r *DossierRepository) ListStale(ctx context.Context, statuses []string, olderThan time.Duration) ([]*secondary.DossierRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append(stringArgs(statuses), ageModifier(olderThan))
	return r.queryDossiers(ctx,
		"SELECT "+dossierColumns+" FROM dossiers WHERE status IN ("+placeholders(len(statuses))+
			") AND updated_at < datetime('now', ?) ORDER BY id",
		args...,
	)
}

// ListByStatus returns all dossiers in status.
func (r *DossierRepository) ListByStatus(ctx context.Context, status string) ([]*secondary.DossierRecord, error) {
	return r.queryDossiers(ctx,
		"SELECT "+dossierColumns+" FROM dossiers WHERE status = ? ORDER BY id",
		status,
	)
}

func (r *DossierRepository) queryDossiers(ctx context.Context, query string, args ...any) ([]*secondary.DossierRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}
	defer rows.Close()

	var dossiers []*secondary.DossierRecord
	for rows.Next() {
		record, err := scanDossier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dossier: %w", err)
		}
		dossiers = append(dossiers, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}
	return dossiers, nil
}

func scanDossier(row rowScanner) (*secondary.DossierRecord, error) {
	var (
		record    secondary.DossierRecord
		summary   sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&record.ID, &record.JobID, &record.Side, &record.Mission, &record.Status,
		&summary, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	record.Summary = summary.String
	record.CreatedAt = formatTime(createdAt)
	record.UpdatedAt = formatTime(updatedAt)
	return &record, nil
}
