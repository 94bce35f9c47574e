package repository

// Schema definitions for the Kestrel report store.
// Compatible with both SQLite and PostgreSQL.

const schemaQualityRuns = `
CREATE TABLE IF NOT EXISTS quality_runs (
    id TEXT PRIMARY KEY,
    database_id TEXT NOT NULL,
    run_at TIMESTAMP NOT NULL,
    overall_score REAL NOT NULL,
    grade TEXT NOT NULL,
    category_results TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quality_runs_database ON quality_runs(database_id);
CREATE INDEX IF NOT EXISTS idx_quality_runs_run_at ON quality_runs(database_id, run_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaQualityRuns,
	}
}
