// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/dialectica/internal/ports/secondary"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextID allocates the next sequential PREFIX-NNN id in table. Callers that
// insert several rows must allocate inside the same transaction.
func nextID(ctx context.Context, q querier, table, prefix string) (string, error) {
	var maxID int
	query := fmt.Sprintf("SELECT COALESCE(MAX(CAST(SUBSTR(id, %d) AS INTEGER)), 0) FROM %s", len(prefix)+2, table)
	if err := q.QueryRowContext(ctx, query).Scan(&maxID); err != nil {
		return "", fmt.Errorf("failed to get next %s ID: %w", strings.ToLower(prefix), err)
	}
	return fmt.Sprintf("%s-%03d", prefix, maxID+1), nil
}

// withTx runs fn in a transaction, committing if it returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notFound wraps secondary.ErrNotFound in the "<entity> <id> not found" form.
func notFound(entity, id string) error {
	return fmt.Errorf("%s %s %w", entity, id, secondary.ErrNotFound)
}

// affected reports whether res touched exactly one row.
func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n == 1
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(time.RFC3339)
}

// ageModifier renders d as a datetime('now', ?) modifier for staleness checks.
func ageModifier(d time.Duration) string {
	return fmt.Sprintf("-%d seconds", int64(d.Seconds()))
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
