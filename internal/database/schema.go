package database

import (
	"context"
	"fmt"
)

var coreSchema = []string{
	`CREATE TABLE IF NOT EXISTS search_runs (
		id UUID PRIMARY KEY,
		query TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		filters JSONB,
		total_results INT NOT NULL DEFAULT 0,
		successful_scrapes INT NOT NULL DEFAULT 0,
		failed_scrapes INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		company_id TEXT,
		location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		employment_type TEXT,
		seniority_level TEXT,
		industry TEXT,
		salary_min DOUBLE PRECISION,
		salary_max DOUBLE PRECISION,
		salary_currency TEXT,
		url TEXT NOT NULL,
		apply_url TEXT,
		posted_at TIMESTAMPTZ,
		scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		search_id UUID NOT NULL REFERENCES search_runs(id),
		raw_payload JSONB,
		page_snapshot TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_search_id ON jobs (search_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs (company)`,
	`CREATE TABLE IF NOT EXISTS scrape_errors (
		id BIGSERIAL PRIMARY KEY,
		search_id UUID NOT NULL REFERENCES search_runs(id),
		external_id TEXT,
		url TEXT,
		message TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_errors_search_id ON scrape_errors (search_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		target_stream TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INT NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_status ON outbox_events (status, created_at)`,
}

var searchIndexSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_search_index (
		job_id BIGINT PRIMARY KEY REFERENCES jobs(id),
		document tsvector NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_search_index_document
		ON job_search_index USING GIN (document)`,
}

// EnsureSchema creates the core tables. It is idempotent and runs at every
// startup.
func EnsureSchema(ctx context.Context, db *DB) error {
	for _, stmt := range coreSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// EnsureSearchIndex creates the full-text shadow table and backfills any job
// rows it is missing. Callers treat a failure here as degraded search, not
// a startup failure.
func EnsureSearchIndex(ctx context.Context, db *DB) error {
	for _, stmt := range searchIndexSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create search index: %w", err)
		}
	}

	backfill := `
		INSERT INTO job_search_index (job_id, document)
		SELECT j.id, ` + tsvectorExpr("j") + `
		FROM jobs j
		LEFT JOIN job_search_index si ON si.job_id = j.id
		WHERE si.job_id IS NULL`

	if _, err := db.Exec(ctx, backfill); err != nil {
		return fmt.Errorf("failed to backfill search index: %w", err)
	}

	return nil
}

// tsvectorExpr builds the indexed document from the searchable job columns.
func tsvectorExpr(alias string) string {
	return fmt.Sprintf(
		`to_tsvector('english',
			coalesce(%[1]s.title, '') || ' ' ||
			coalesce(%[1]s.company, '') || ' ' ||
			coalesce(%[1]s.location, '') || ' ' ||
			coalesce(%[1]s.description, '') || ' ' ||
			coalesce(%[1]s.industry, ''))`, alias)
}
