package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/dialectica/internal/ports/secondary"
)

// JobRepository implements secondary.JobRepository with SQLite.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new SQLite job repository.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ secondary.JobRepository = (*JobRepository)(nil)

const jobColumns = "id, query, status, created_at, updated_at"

// Create allocates a job, one dossier per side and one empty plan per dossier.
func (r *JobRepository) Create(ctx context.Context, job *secondary.NewJob) (*secondary.JobRecord, error) {
	var jobID string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		jobID, err = nextID(ctx, tx, "jobs", "JOB")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO jobs (id, query, status) VALUES (?, ?, 'pending')",
			jobID, job.Query,
		); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		for _, side := range []string{"thesis", "antithesis"} {
			dossierID, err := nextID(ctx, tx, "dossiers", "DOS")
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO dossiers (id, job_id, side, mission, status) VALUES (?, ?, ?, ?, 'pending')",
				dossierID, jobID, side, job.Missions[side],
			); err != nil {
				return fmt.Errorf("failed to create %s dossier: %w", side, err)
			}

			planID, err := nextID(ctx, tx, "research_plans", "PLAN")
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO research_plans (id, dossier_id) VALUES (?, ?)",
				planID, dossierID,
			); err != nil {
				return fmt.Errorf("failed to create research plan: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, jobID)
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*secondary.JobRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	record, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, notFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return record, nil
}

// List retrieves jobs matching the given filters.
func (r *JobRepository) List(ctx context.Context, filters secondary.JobFilters) ([]*secondary.JobRecord, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE 1=1"
	args := []any{}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	return r.queryJobs(ctx, query, args...)
}

// ApplyDecomposition writes both sides' plans and starts research.
func (r *JobRepository) ApplyDecomposition(ctx context.Context, jobID string, sides []*secondary.SideDecomposition) (bool, error) {
	applied := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE jobs SET status = 'researching', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'",
			jobID,
		)
		if err != nil {
			return fmt.Errorf("failed to start job research: %w", err)
		}
		if !affected(res) {
			return nil
		}

		for _, side := range sides {
			var dossierID, planID string
			err := tx.QueryRowContext(ctx,
				`SELECT d.id, p.id FROM dossiers d
				JOIN research_plans p ON p.dossier_id = d.id
				WHERE d.job_id = ? AND d.side = ?`,
				jobID, side.Side,
			).Scan(&dossierID, &planID)
			if err == sql.ErrNoRows {
				return notFound(side.Side+" dossier for job", jobID)
			}
			if err != nil {
				return fmt.Errorf("failed to get %s dossier: %w", side.Side, err)
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE dossiers SET mission = ?, status = 'researching', updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND status = 'pending'`,
				side.Mission, dossierID,
			); err != nil {
				return fmt.Errorf("failed to start dossier %s: %w", dossierID, err)
			}

			if err := insertSteps(ctx, tx, planID, 1, side.Steps); err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// MarkAwaitingVerification runs the convergence check as a single statement
// so two research units finishing together cannot both miss it.
func (r *JobRepository) MarkAwaitingVerification(ctx context.Context, jobID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'awaiting_verification', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'researching'
		AND NOT EXISTS (SELECT 1 FROM dossiers WHERE job_id = ? AND status != 'awaiting_verification')`,
		jobID, jobID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to converge job: %w", err)
	}
	return affected(res), nil
}

// MarkComplete moves the job to complete once no dossier is unapproved. Of
// two concurrent approvals exactly one observes an affected row.
func (r *JobRepository) MarkComplete(ctx context.Context, jobID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'complete', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('researching', 'awaiting_verification')
		AND NOT EXISTS (SELECT 1 FROM dossiers WHERE job_id = ? AND status != 'approved')`,
		jobID, jobID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return affected(res), nil
}

// ListStale returns jobs that have sat in status for longer than olderThan.
func (r *JobRepository) ListStale(ctx context.Context, status string, olderThan time.Duration) ([]*secondary.JobRecord, error) {
	return r.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE status = ? AND updated_at < datetime('now', ?) ORDER BY id",
		status, ageModifier(olderThan),
	)
}

// ListCompleteWithoutReport returns jobs that completed more than olderThan
// ago and still have no report.
func (r *JobRepository) ListCompleteWithoutReport(ctx context.Context, olderThan time.Duration) ([]*secondary.JobRecord, error) {
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs j
		WHERE j.status = 'complete' AND j.updated_at < datetime('now', ?)
		AND NOT EXISTS (SELECT 1 FROM synthesis_reports s WHERE s.job_id = j.id)
		ORDER BY j.id`,
		ageModifier(olderThan),
	)
}

func (r *JobRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*secondary.JobRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*secondary.JobRecord
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*secondary.JobRecord, error) {
	var (
		record    secondary.JobRecord
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&record.ID, &record.Query, &record.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	record.CreatedAt = formatTime(createdAt)
	record.UpdatedAt = formatTime(updatedAt)
	return &record, nil
}

// insertSteps appends steps to a plan starting at step number first.
func insertSteps(ctx context.Context, tx *sql.Tx, planID string, first int, steps []*secondary.NewStep) error {
	for i, step := range steps {
		stepID, err := nextID(ctx, tx, "research_steps", "STEP")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO research_steps
			(id, plan_id, step_number, description, status, tool_used, tool_selection_justification, tool_query_rationale)
			VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)`,
			stepID, planID, first+i, step.Description,
			nullString(step.Tool), nullString(step.ToolSelectionJustification), nullString(step.ToolQueryRationale),
		); err != nil {
			return fmt.Errorf("failed to create research step: %w", err)
		}
	}
	return nil
}
