package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hirehound/jobhound/internal/models"
)

// JobRepository owns the jobs table and its full-text shadow index. Every
// mutation updates the index inside the same transaction, so the two can
// never drift.
type JobRepository struct {
	db          *DB
	logger      *slog.Logger
	ftsDisabled atomic.Bool
}

func NewJobRepository(db *DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger.With("component", "job_repository"),
	}
}

// Setup brings up the full-text index, building it from existing rows when
// missing. Failure degrades search instead of failing startup.
func (r *JobRepository) Setup(ctx context.Context) {
	if err := EnsureSearchIndex(ctx, r.db); err != nil {
		r.logger.Error("full-text index unavailable, continuing without search", "error", err)
		r.ftsDisabled.Store(true)
	}
}

// SearchEnabled reports whether full-text search is available.
func (r *JobRepository) SearchEnabled() bool {
	return !r.ftsDisabled.Load()
}

// JobFilter narrows FindAll.
type JobFilter struct {
	SearchID *uuid.UUID
	Company  string
	Location string
	DateFrom *time.Time
	Limit    int
}

// Upsert inserts a job keyed by its external identifier, or refreshes the
// existing row. The returned flag is true only for a first-time insert;
// callers classify the other case as a duplicate.
func (r *JobRepository) Upsert(ctx context.Context, job *models.Job) (bool, error) {
	return r.UpsertWithEvent(ctx, job, nil)
}

// UpsertWithEvent additionally appends an outbox event in the same
// transaction when the row is a first-time insert.
func (r *JobRepository) UpsertWithEvent(ctx context.Context, job *models.Job, event *OutboxEvent) (bool, error) {
	var inserted bool

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO jobs (
				external_id, title, company, company_id, location, description,
				employment_type, seniority_level, industry,
				salary_min, salary_max, salary_currency,
				url, apply_url, posted_at, scraped_at, search_id,
				raw_payload, page_snapshot
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (external_id) DO UPDATE SET
				title = EXCLUDED.title,
				company = EXCLUDED.company,
				company_id = EXCLUDED.company_id,
				location = EXCLUDED.location,
				description = EXCLUDED.description,
				employment_type = EXCLUDED.employment_type,
				seniority_level = EXCLUDED.seniority_level,
				industry = EXCLUDED.industry,
				salary_min = EXCLUDED.salary_min,
				salary_max = EXCLUDED.salary_max,
				salary_currency = EXCLUDED.salary_currency,
				url = EXCLUDED.url,
				apply_url = EXCLUDED.apply_url,
				posted_at = EXCLUDED.posted_at,
				scraped_at = EXCLUDED.scraped_at,
				raw_payload = EXCLUDED.raw_payload,
				page_snapshot = EXCLUDED.page_snapshot,
				updated_at = now()
			RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

		err := tx.QueryRow(ctx, query,
			job.ExternalID, job.Title, job.Company, job.CompanyID, job.Location,
			job.Description, job.EmploymentType, job.SeniorityLevel, job.Industry,
			job.SalaryMin, job.SalaryMax, job.SalaryCurrency,
			job.URL, job.ApplyURL, job.PostedAt, job.ScrapedAt, job.SearchID,
			job.RawPayload, job.PageSnapshot,
		).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt, &inserted)
		if err != nil {
			return fmt.Errorf("failed to upsert job: %w", err)
		}

		if err := r.syncIndexTx(ctx, tx, job.ID); err != nil {
			return err
		}

		if event != nil && inserted {
			if err := NewOutboxRepository(r.db).InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

func (r *JobRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Job, error) {
	rows, err := r.db.Query(ctx, selectJobs+` WHERE external_id = $1`, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// Exists reports whether a job with the external identifier is already
// persisted. This is the dedup check run before any write.
func (r *JobRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE external_id = $1)`, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return exists, nil
}

func (r *JobRepository) FindAll(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	var (
		conditions []string
		args       []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SearchID != nil {
		conditions = append(conditions, "search_id = "+arg(*filter.SearchID))
	}
	if filter.Company != "" {
		conditions = append(conditions, "company ILIKE "+arg("%"+filter.Company+"%"))
	}
	if filter.Location != "" {
		conditions = append(conditions, "location ILIKE "+arg("%"+filter.Location+"%"))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "scraped_at >= "+arg(*filter.DateFrom))
	}

	query := selectJobs
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scraped_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT " + arg(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *JobRepository) FindBySearchID(ctx context.Context, searchID uuid.UUID) ([]*models.Job, error) {
	rows, err := r.db.Query(ctx, selectJobs+` WHERE search_id = $1 ORDER BY scraped_at`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by search: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *JobRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// Search runs a full-text query over the shadow index. With the index
// degraded it falls back to a substring match on title and company.
func (r *JobRepository) Search(ctx context.Context, q string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	if !r.SearchEnabled() {
		return r.FindAll(ctx, JobFilter{Company: q, Limit: limit})
	}

	query := selectJobs + `
		JOIN job_search_index si ON si.job_id = jobs.id
		WHERE si.document @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(si.document, plainto_tsquery('english', $1)) DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// DeleteByExternalID removes one job and its index entry. The returned flag
// reports whether the identifier was found.
func (r *JobRepository) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	var found bool

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var jobID int64
		err := tx.QueryRow(ctx, `SELECT id FROM jobs WHERE external_id = $1`, externalID).Scan(&jobID)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up job: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM job_search_index WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("failed to delete index entry: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}

		found = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

// BulkDeleteResult reports per-identifier outcomes of a bulk delete.
type BulkDeleteResult struct {
	Deleted int
	Failed  []BulkDeleteFailure
}

type BulkDeleteFailure struct {
	ExternalID string
	Reason     string
}

// DeleteBulk removes jobs in the order given, one transaction each. A
// failed identifier is recorded and never rolls back earlier deletions.
func (r *JobRepository) DeleteBulk(ctx context.Context, externalIDs []string) *BulkDeleteResult {
	result := &BulkDeleteResult{}

	for _, id := range externalIDs {
		found, err := r.DeleteByExternalID(ctx, id)
		switch {
		case err != nil:
			r.logger.Error("bulk delete item failed", "external_id", id, "error", err)
			result.Failed = append(result.Failed, BulkDeleteFailure{ExternalID: id, Reason: err.Error()})
		case !found:
			result.Failed = append(result.Failed, BulkDeleteFailure{ExternalID: id, Reason: "not found"})
		default:
			result.Deleted++
		}
	}

	return result
}

// DeleteAll wipes every job and the whole index in one transaction.
func (r *JobRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM job_search_index`); err != nil {
			return fmt.Errorf("failed to clear search index: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM jobs`); err != nil {
			return fmt.Errorf("failed to delete jobs: %w", err)
		}
		return nil
	})
}

// syncIndexTx rewrites the index entry for one job within the caller's
// transaction (delete-then-reinsert, covering both insert and update).
func (r *JobRepository) syncIndexTx(ctx context.Context, tx pgx.Tx, jobID int64) error {
	if !r.SearchEnabled() {
		return nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM job_search_index WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to refresh index entry: %w", err)
	}

	insert := `
		INSERT INTO job_search_index (job_id, document)
		SELECT j.id, ` + tsvectorExpr("j") + `
		FROM jobs j
		WHERE j.id = $1`
	if _, err := tx.Exec(ctx, insert, jobID); err != nil {
		return fmt.Errorf("failed to insert index entry: %w", err)
	}

	return nil
}

const selectJobs = `
	SELECT jobs.id, jobs.external_id, jobs.title, jobs.company, jobs.company_id,
	       jobs.location, jobs.description, jobs.employment_type, jobs.seniority_level,
	       jobs.industry, jobs.salary_min, jobs.salary_max, jobs.salary_currency,
	       jobs.url, jobs.apply_url, jobs.posted_at, jobs.scraped_at, jobs.search_id,
	       jobs.raw_payload, jobs.page_snapshot, jobs.created_at, jobs.updated_at
	FROM jobs`

func scanJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		j := &models.Job{}
		err := rows.Scan(
			&j.ID, &j.ExternalID, &j.Title, &j.Company, &j.CompanyID,
			&j.Location, &j.Description, &j.EmploymentType, &j.SeniorityLevel,
			&j.Industry, &j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency,
			&j.URL, &j.ApplyURL, &j.PostedAt, &j.ScrapedAt, &j.SearchID,
			&j.RawPayload, &j.PageSnapshot, &j.CreatedAt, &j.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
