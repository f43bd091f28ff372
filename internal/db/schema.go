package db

// SchemaSQL is the complete schema for fresh dialectica databases.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. Repository and
// service tests load it via GetSchemaSQL() instead of declaring their own
// tables, so a query that references a missing column fails in tests with
// "no such column" rather than in production.
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//  3. Run `make test` to verify alignment
const SchemaSQL = `
-- Jobs (one end-to-end research request)
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'researching', 'awaiting_verification', 'complete')) DEFAULT 'pending',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Dossiers (one side of a job's argument)
CREATE TABLE IF NOT EXISTS dossiers (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	side TEXT NOT NULL CHECK(side IN ('thesis', 'antithesis')),
	mission TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'researching', 'awaiting_verification', 'approved', 'revision_requested')) DEFAULT 'pending',
	summary TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE,
	UNIQUE(job_id, side)
);

-- Research plans (one per dossier)
CREATE TABLE IF NOT EXISTS research_plans (
	id TEXT PRIMARY KEY,
	dossier_id TEXT NOT NULL UNIQUE,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (dossier_id) REFERENCES dossiers(id) ON DELETE CASCADE
);

-- Research steps (ordered by step_number within a plan)
CREATE TABLE IF NOT EXISTS research_steps (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	step_number INTEGER NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'in_progress', 'completed', 'failed')) DEFAULT 'pending',
	tool_used TEXT,
	tool_selection_justification TEXT,
	tool_query_rationale TEXT,
	data_gap_identified TEXT,
	proxy_hypothesis TEXT,
	tool_input TEXT,
	tool_output_summary TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (plan_id) REFERENCES research_plans(id) ON DELETE CASCADE,
	UNIQUE(plan_id, step_number)
);

-- Evidence items (normalized findings attached to a dossier)
CREATE TABLE IF NOT EXISTS evidence_items (
	id TEXT PRIMARY KEY,
	dossier_id TEXT NOT NULL,
	step_id TEXT,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	source TEXT NOT NULL,
	confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
	tags TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (dossier_id) REFERENCES dossiers(id) ON DELETE CASCADE,
	FOREIGN KEY (step_id) REFERENCES research_steps(id) ON DELETE SET NULL
);

-- Revision feedback (consumed by the next research run for the dossier)
CREATE TABLE IF NOT EXISTS revision_feedback (
	id TEXT PRIMARY KEY,
	dossier_id TEXT NOT NULL,
	feedback TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	processed_at DATETIME,
	FOREIGN KEY (dossier_id) REFERENCES dossiers(id) ON DELETE CASCADE
);

-- Synthesis reports (at most one per job)
CREATE TABLE IF NOT EXISTS synthesis_reports (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

-- Request ledger (every LLM and tool provider call)
CREATE TABLE IF NOT EXISTS request_ledger (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL CHECK(provider IN ('llm', 'tool')),
	job_id TEXT,
	dossier_id TEXT,
	step_id TEXT,
	call_type TEXT NOT NULL,
	tool_name TEXT,
	status TEXT NOT NULL CHECK(status IN ('pending', 'in_progress', 'completed', 'failed')) DEFAULT 'pending',
	request TEXT NOT NULL,
	response TEXT,
	error_message TEXT,
	started_at DATETIME,
	completed_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_dossiers_job ON dossiers(job_id);
CREATE INDEX IF NOT EXISTS idx_steps_plan ON research_steps(plan_id, step_number);
CREATE INDEX IF NOT EXISTS idx_evidence_dossier ON evidence_items(dossier_id);
CREATE INDEX IF NOT EXISTS idx_feedback_dossier ON revision_feedback(dossier_id, processed_at);
CREATE INDEX IF NOT EXISTS idx_ledger_job ON request_ledger(job_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_status ON request_ledger(status);
`

// GetSchemaSQL returns the authoritative schema.
func GetSchemaSQL() string {
	return SchemaSQL
}
