// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() so tests run against the
// authoritative schema. Do not declare tables in test files; use
// setupTestDB() and the seed helpers below.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/dialectica/internal/adapters/sqlite"
	"github.com/example/dialectica/internal/db"
	"github.com/example/dialectica/internal/ports/secondary"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// Every connection to ":memory:" is a separate database, so the pool is
// pinned to one connection.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedJob creates a job through the repository and returns it with its
// dossiers, thesis first.
func seedJob(t *testing.T, testDB *sql.DB, query string) (*secondary.JobRecord, []*secondary.DossierRecord) {
	t.Helper()
	ctx := context.Background()

	job, err := sqlite.NewJobRepository(testDB).Create(ctx, &secondary.NewJob{
		Query: query,
		Missions: map[string]string{
			"thesis":     "FOR: " + query,
			"antithesis": "AGAINST: " + query,
		},
	})
	if err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}

	dossiers, err := sqlite.NewDossierRepository(testDB).ListByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to list seeded dossiers: %v", err)
	}
	return job, dossiers
}

// seedResearchingJob seeds a job and decomposes it with the given number of
// steps per side.
func seedResearchingJob(t *testing.T, testDB *sql.DB, stepsPerSide int) (*secondary.JobRecord, []*secondary.DossierRecord) {
	t.Helper()
	ctx := context.Background()

	job, _ := seedJob(t, testDB, "Is Apple undervalued?")

	var sides []*secondary.SideDecomposition
	for _, side := range []string{"thesis", "antithesis"} {
		sd := &secondary.SideDecomposition{Side: side, Mission: "refined " + side}
		for i := 0; i < stepsPerSide; i++ {
			sd.Steps = append(sd.Steps, &secondary.NewStep{
				Description: side + " step",
				Tool:        "mcp_server_tool",
			})
		}
		sides = append(sides, sd)
	}

	applied, err := sqlite.NewJobRepository(testDB).ApplyDecomposition(ctx, job.ID, sides)
	if err != nil || !applied {
		t.Fatalf("failed to decompose seeded job: applied=%v err=%v", applied, err)
	}

	dossiers, err := sqlite.NewDossierRepository(testDB).ListByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to list seeded dossiers: %v", err)
	}
	return job, dossiers
}

// setStatus forces a row's status for test setup.
func setStatus(t *testing.T, testDB *sql.DB, table, id, status string) {
	t.Helper()
	if _, err := testDB.Exec("UPDATE "+table+" SET status = ? WHERE id = ?", status, id); err != nil {
		t.Fatalf("failed to set %s status: %v", table, err)
	}
}

// age backdates a row's updated_at.
func age(t *testing.T, testDB *sql.DB, table, id string) {
	t.Helper()
	if _, err := testDB.Exec("UPDATE "+table+" SET updated_at = datetime('now', '-2 hours') WHERE id = ?", id); err != nil {
		t.Fatalf("failed to age %s: %v", table, err)
	}
}
