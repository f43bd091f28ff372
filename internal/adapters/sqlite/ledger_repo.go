package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/dialectica/internal/ports/secondary"
)

// LedgerRepository implements secondary.LedgerRepository with SQLite.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new SQLite request ledger repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

var _ secondary.LedgerRepository = (*LedgerRepository)(nil)

const ledgerColumns = `id, provider, job_id, dossier_id, step_id, call_type, tool_name, status,
	request, response, error_message, started_at, completed_at, created_at`

// Create records a pending entry, assigning an ID if the entry has none.
func (r *LedgerRepository) Create(ctx context.Context, entry *secondary.LedgerRecord) error {
	if entry.ID == "" {
		entry.ID = "REQ-" + uuid.NewString()
	}
	entry.Status = "pending"

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO request_ledger (id, provider, job_id, dossier_id, step_id, call_type, tool_name, status, request)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		entry.ID, entry.Provider, nullString(entry.JobID), nullString(entry.DossierID), nullString(entry.StepID),
		entry.CallType, nullString(entry.ToolName), entry.Request,
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// MarkInProgress stamps the start of the provider call.
func (r *LedgerRepository) MarkInProgress(ctx context.Context, id string) error {
	return r.update(ctx, id,
		"UPDATE request_ledger SET status = 'in_progress', started_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'",
		id,
	)
}

// Complete finalizes an entry with the provider's response.
func (r *LedgerRepository) Complete(ctx context.Context, id, response string) error {
	return r.update(ctx, id,
		`UPDATE request_ledger SET status = 'completed', response = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_progress')`,
		response, id,
	)
}

// Fail finalizes an entry with an error message.
func (r *LedgerRepository) Fail(ctx context.Context, id, errorMessage string) error {
	return r.update(ctx, id,
		`UPDATE request_ledger SET status = 'failed', error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_progress')`,
		errorMessage, id,
	)
}

func (r *LedgerRepository) update(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}
	if !affected(res) {
		return fmt.Errorf("ledger entry %s not found or already finalized", id)
	}
	return nil
}

// GetByID retrieves an entry.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*secondary.LedgerRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+ledgerColumns+" FROM request_ledger WHERE id = ?", id)
	record, err := scanLedger(row)
	if err == sql.ErrNoRows {
		return nil, notFound("ledger entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return record, nil
}

// List retrieves entries matching the given filters.
func (r *LedgerRepository) List(ctx context.Context, filters secondary.LedgerFilters) ([]*secondary.LedgerRecord, error) {
	query := "SELECT " + ledgerColumns + " FROM request_ledger WHERE 1=1"
	args := []any{}

	if filters.JobID != "" {
		query += " AND job_id = ?"
		args = append(args, filters.JobID)
	}
	if filters.DossierID != "" {
		query += " AND dossier_id = ?"
		args = append(args, filters.DossierID)
	}
	if filters.Provider != "" {
		query += " AND provider = ?"
		args = append(args, filters.Provider)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.LedgerRecord
	for rows.Next() {
		record, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// FailStale closes entries abandoned by a crashed worker.
func (r *LedgerRepository) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE request_ledger SET status = 'failed', error_message = 'abandoned: worker did not finalize the call',
		completed_at = CURRENT_TIMESTAMP
		WHERE status IN ('pending', 'in_progress') AND created_at < datetime('now', ?)`,
		ageModifier(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale ledger entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanLedger(row rowScanner) (*secondary.LedgerRecord, error) {
	var (
		record       secondary.LedgerRecord
		jobID        sql.NullString
		dossierID    sql.NullString
		stepID       sql.NullString
		toolName     sql.NullString
		response     sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		createdAt    time.Time
	)
	err := row.Scan(&record.ID, &record.Provider, &jobID, &dossierID, &stepID, &record.CallType, &toolName,
		&record.Status, &record.Request, &response, &errorMessage, &startedAt, &completedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	record.JobID = jobID.String
	record.DossierID = dossierID.String
	record.StepID = stepID.String
	record.ToolName = toolName.String
	record.Response = response.String
	record.ErrorMessage = errorMessage.String
	record.StartedAt = formatNullTime(startedAt)
	record.CompletedAt = formatNullTime(completedAt)
	record.CreatedAt = formatTime(createdAt)
	return &record, nil
}
