package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/dialectica/internal/core/research"
	"github.com/example/dialectica/internal/ports/secondary"
)

// PlanRepository implements secondary.PlanRepository with SQLite.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new SQLite plan repository.
func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

var _ secondary.PlanRepository = (*PlanRepository)(nil)

const stepColumns = `id, plan_id, step_number, description, status, tool_used, tool_selection_justification,
	tool_query_rationale, data_gap_identified, proxy_hypothesis, tool_input, tool_output_summary, created_at, updated_at`

// GetByDossier retrieves the dossier's plan.
func (r *PlanRepository) GetByDossier(ctx context.Context, dossierID string) (*secondary.PlanRecord, error) {
	var (
		record    secondary.PlanRecord
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, dossier_id, created_at FROM research_plans WHERE dossier_id = ?",
		dossierID,
	).Scan(&record.ID, &record.DossierID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, notFound("plan for dossier", dossierID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	record.CreatedAt = formatTime(createdAt)
	return &record, nil
}

// ListSteps returns the plan's steps in execution order.
func (r *PlanRepository) ListSteps(ctx context.Context, planID string) ([]*secondary.StepRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+stepColumns+" FROM research_steps WHERE plan_id = ? ORDER BY step_number",
		planID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*secondary.StepRecord
	for rows.Next() {
		record, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return steps, nil
}

// GetStep retrieves a step by its ID.
func (r *PlanRepository) GetStep(ctx context.Context, id string) (*secondary.StepRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+stepColumns+" FROM research_steps WHERE id = ?", id)
	record, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, notFound("step", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return record, nil
}

// UpdateStepStatus sets a step's status.
func (r *PlanRepository) UpdateStepStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE research_steps SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}
	if !affected(res) {
		return notFound("step", id)
	}
	return nil
}

// ClaimStep takes the step for one run. An in_progress step is only taken
// over once its holder has been silent for staleAfter.
func (r *PlanRepository) ClaimStep(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE research_steps SET status = 'in_progress', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND (status IN ('pending', 'failed')
			OR (status = 'in_progress' AND updated_at < datetime('now', ?)))`,
		id, ageModifier(staleAfter),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim step: %w", err)
	}
	return affected(res), nil
}

// SaveProxy records the step's data gap and proxy hypothesis and retargets
// its description at the proxy.
func (r *PlanRepository) SaveProxy(ctx context.Context, id, description, dataGap, proxyJSON string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE research_steps SET description = ?, data_gap_identified = ?, proxy_hypothesis = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		description, nullString(dataGap), nullString(proxyJSON), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save proxy hypothesis: %w", err)
	}
	if !affected(res) {
		return notFound("step", id)
	}
	return nil
}

// CompleteStep stores the step's evidence and marks it completed. The
// dossier's updated_at is bumped so the reconciler sees progress.
func (r *PlanRepository) CompleteStep(ctx context.Context, c *secondary.StepCompletion) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, ev := range c.Evidence {
			if ev.ID == "" {
				ev.ID = "EV-" + uuid.NewString()
			}
			tags := ev.Tags
			if tags == nil {
				tags = []string{}
			}
			encoded, err := json.Marshal(tags)
			if err != nil {
				return fmt.Errorf("failed to encode evidence tags: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO evidence_items (id, dossier_id, step_id, title, content, source, confidence, tags)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				ev.ID, c.DossierID, nullString(c.StepID), ev.Title, ev.Content, ev.Source,
				research.ClampConfidence(ev.Confidence), string(encoded),
			); err != nil {
				return fmt.Errorf("failed to create evidence item: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE research_steps SET status = 'completed', tool_used = ?, tool_input = ?, tool_output_summary = ?,
			updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			nullString(c.ToolUsed), nullString(c.ToolInput), nullString(c.OutputSummary), c.StepID,
		)
		if err != nil {
			return fmt.Errorf("failed to complete step: %w", err)
		}
		if !affected(res) {
			return notFound("step", c.StepID)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE dossiers SET updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			c.DossierID,
		); err != nil {
			return fmt.Errorf("failed to touch dossier: %w", err)
		}
		return nil
	})
}

// ApplyRevisionFeedback turns unprocessed feedback into new plan steps and
// clears the dossier's evidence so the rerun starts clean.
func (r *PlanRepository) ApplyRevisionFeedback(ctx context.Context, dossierID string) (int, error) {
	consumed := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var planID string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM research_plans WHERE dossier_id = ?", dossierID,
		).Scan(&planID)
		if err == sql.ErrNoRows {
			return notFound("plan for dossier", dossierID)
		}
		if err != nil {
			return fmt.Errorf("failed to get plan: %w", err)
		}

		type pending struct{ id, feedback string }
		var entries []pending
		rows, err := tx.QueryContext(ctx,
			"SELECT id, feedback FROM revision_feedback WHERE dossier_id = ? AND processed_at IS NULL ORDER BY created_at, id",
			dossierID,
		)
		if err != nil {
			return fmt.Errorf("failed to list revision feedback: %w", err)
		}
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.feedback); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan revision feedback: %w", err)
			}
			entries = append(entries, p)
		}
		rows.Close()
		if len(entries) == 0 {
			return nil
		}

		var maxStep int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(step_number), 0) FROM research_steps WHERE plan_id = ?", planID,
		).Scan(&maxStep); err != nil {
			return fmt.Errorf("failed to get last step number: %w", err)
		}

		steps := make([]*secondary.NewStep, len(entries))
		for i, e := range entries {
			steps[i] = &secondary.NewStep{Description: research.RevisionStepDescription(e.feedback)}
			if _, err := tx.ExecContext(ctx,
				"UPDATE revision_feedback SET processed_at = CURRENT_TIMESTAMP WHERE id = ?", e.id,
			); err != nil {
				return fmt.Errorf("failed to mark feedback processed: %w", err)
			}
		}
		if err := insertSteps(ctx, tx, planID, maxStep+1, steps); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM evidence_items WHERE dossier_id = ?", dossierID,
		); err != nil {
			return fmt.Errorf("failed to clear evidence: %w", err)
		}

		consumed = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return consumed, nil
}

func scanStep(row rowScanner) (*secondary.StepRecord, error) {
	var (
		record        secondary.StepRecord
		toolUsed      sql.NullString
		justification sql.NullString
		rationale     sql.NullString
		dataGap       sql.NullString
		proxy         sql.NullString
		toolInput     sql.NullString
		outputSummary sql.NullString
		createdAt     time.Time
		updatedAt     time.Time
	)
	err := row.Scan(&record.ID, &record.PlanID, &record.StepNumber, &record.Description, &record.Status,
		&toolUsed, &justification, &rationale, &dataGap, &proxy, &toolInput, &outputSummary,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	record.ToolUsed = toolUsed.String
	record.ToolSelectionJustification = justification.String
	record.ToolQueryRationale = rationale.String
	record.DataGapIdentified = dataGap.String
	record.ProxyHypothesis = proxy.String
	record.ToolInput = toolInput.String
	record.ToolOutputSummary = outputSummary.String
	record.CreatedAt = formatTime(createdAt)
	record.UpdatedAt = formatTime(updatedAt)
	return &record, nil
}
