package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hirehound/jobhound/internal/models"
)

// SearchRunRepository owns the search_runs and scrape_errors tables.
type SearchRunRepository struct {
	db *DB
}

func NewSearchRunRepository(db *DB) *SearchRunRepository {
	return &SearchRunRepository{db: db}
}

// Create inserts a new run in running state and fills in its identifier and
// timestamps.
func (r *SearchRunRepository) Create(ctx context.Context, run *models.SearchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.SearchRunning

	query := `
		INSERT INTO search_runs (id, query, location, filters, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at, created_at`

	err := r.db.QueryRow(ctx, query,
		run.ID, run.Query, run.Location, run.Filters, run.Status,
	).Scan(&run.StartedAt, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create search run: %w", err)
	}

	return nil
}

func (r *SearchRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SearchRun, error) {
	query := `
		SELECT id, query, location, filters, total_results, successful_scrapes,
		       failed_scrapes, status, started_at, completed_at, created_at
		FROM search_runs
		WHERE id = $1`

	run := &models.SearchRun{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Query, &run.Location, &run.Filters, &run.TotalResults,
		&run.SuccessfulScrapes, &run.FailedScrapes, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search run: %w", err)
	}

	return run, nil
}

func (r *SearchRunRepository) FindAll(ctx context.Context, limit int) ([]*models.SearchRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, query, location, filters, total_results, successful_scrapes,
		       failed_scrapes, status, started_at, completed_at, created_at
		FROM search_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query search runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SearchRun
	for rows.Next() {
		run := &models.SearchRun{}
		err := rows.Scan(
			&run.ID, &run.Query, &run.Location, &run.Filters, &run.TotalResults,
			&run.SuccessfulScrapes, &run.FailedScrapes, &run.Status,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// SetTotalResults records the number of raw listings observed so far.
func (r *SearchRunRepository) SetTotalResults(ctx context.Context, id uuid.UUID, total int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE search_runs SET total_results = $2 WHERE id = $1`, id, total)
	if err != nil {
		return fmt.Errorf("failed to update total results: %w", err)
	}
	return nil
}

func (r *SearchRunRepository) IncrementSuccessful(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE search_runs SET successful_scrapes = successful_scrapes + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment successful scrapes: %w", err)
	}
	return nil
}

func (r *SearchRunRepository) IncrementFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE search_runs SET failed_scrapes = failed_scrapes + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment failed scrapes: %w", err)
	}
	return nil
}

// Finalize moves a run into a terminal status and stamps completed_at. Only
// a run still in running state is touched, so finalization happens at most
// once.
func (r *SearchRunRepository) Finalize(ctx context.Context, id uuid.UUID, status models.SearchStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finalize to non-terminal status %q", status)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE search_runs
		SET status = $2, completed_at = now()
		WHERE id = $1 AND status = 'running'`, id, status)
	if err != nil {
		return fmt.Errorf("failed to finalize search run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("search run %s already finalized or missing", id)
	}

	return nil
}

// LogError appends one scrape error. The table is append-only.
func (r *SearchRunRepository) LogError(ctx context.Context, e *models.ScrapeError) error {
	query := `
		INSERT INTO scrape_errors (search_id, external_id, url, message, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, occurred_at`

	err := r.db.QueryRow(ctx, query,
		e.SearchID, e.ExternalID, e.URL, e.Message, e.Category,
	).Scan(&e.ID, &e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to log scrape error: %w", err)
	}

	return nil
}

func (r *SearchRunRepository) GetErrors(ctx context.Context, searchID uuid.UUID) ([]*models.ScrapeError, error) {
	query := `
		SELECT id, search_id, external_id, url, message, category, occurred_at
		FROM scrape_errors
		WHERE search_id = $1
		ORDER BY occurred_at`

	rows, err := r.db.Query(ctx, query, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape errors: %w", err)
	}
	defer rows.Close()

	var errors []*models.ScrapeError
	for rows.Next() {
		e := &models.ScrapeError{}
		err := rows.Scan(&e.ID, &e.SearchID, &e.ExternalID, &e.URL, &e.Message, &e.Category, &e.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape error: %w", err)
		}
		errors = append(errors, e)
	}

	return errors, rows.Err()
}

// DeleteAll wipes every run and its errors. Jobs must be deleted first by
// the job repository; the foreign keys enforce the order.
func (r *SearchRunRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM scrape_errors`); err != nil {
			return fmt.Errorf("failed to delete scrape errors: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM search_runs`); err != nil {
			return fmt.Errorf("failed to delete search runs: %w", err)
		}
		return nil
	})
}
