// Package orchestrator composes session, browser, query building, extraction
// and persistence into one end-to-end scrape run.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/hirehound/jobhound/internal/database"
	"github.com/hirehound/jobhound/internal/events"
	"github.com/hirehound/jobhound/internal/models"
	"github.com/hirehound/jobhound/internal/parser"
	"github.com/hirehound/jobhound/internal/query"
	"github.com/hirehound/jobhound/internal/scraper"
	"github.com/hirehound/jobhound/internal/session"
)

var (
	ErrInvalidOptions  = errors.New("invalid scrape options")
	ErrSessionRequired = errors.New("no valid session, run login first")
)

// Options is the validated configuration for one run. Flags from the CLI
// map onto it 1:1.
type Options struct {
	Filters      query.Filters
	Limit        int
	Headless     bool
	FetchDetails bool
	Snapshot     bool
	PageTimeout  time.Duration
	MaxRetries   int
}

// Validate rejects bad option combinations before any browser or database
// work happens.
func (o *Options) Validate() error {
	if o.Limit == 0 {
		o.Limit = 50
	}
	if o.Limit < 1 || o.Limit > 1000 {
		return fmt.Errorf("%w: limit must be between 1 and 1000, got %d", ErrInvalidOptions, o.Limit)
	}
	return nil
}

// Summary is what a run reports back to the caller.
type Summary struct {
	Success      bool      `json:"success"`
	TotalScraped int       `json:"total_scraped"`
	Duplicates   int       `json:"duplicates"`
	Failed       int       `json:"failed"`
	SearchID     uuid.UUID `json:"search_id"`
	Errors       []string  `json:"errors,omitempty"`
}

// SearchRunStore is the slice of the search-run repository the run needs.
type SearchRunStore interface {
	Create(ctx context.Context, run *models.SearchRun) error
	SetTotalResults(ctx context.Context, id uuid.UUID, total int) error
	IncrementSuccessful(ctx context.Context, id uuid.UUID) error
	IncrementFailed(ctx context.Context, id uuid.UUID) error
	Finalize(ctx context.Context, id uuid.UUID, status models.SearchStatus) error
	LogError(ctx context.Context, e *models.ScrapeError) error
}

// JobStore is the slice of the job repository the run needs.
type JobStore interface {
	Exists(ctx context.Context, externalID string) (bool, error)
	UpsertWithEvent(ctx context.Context, job *models.Job, event *database.OutboxEvent) (bool, error)
}

// SessionLoader restores persisted authenticated state.
type SessionLoader interface {
	Load() (*session.State, error)
}

// BrowserSession is one live browser owned by the run.
type BrowserSession interface {
	Page() playwright.Page
	Close() error
}

// Pipeline drives extraction over the live page.
type Pipeline interface {
	Run(ctx context.Context, page playwright.Page, cfg scraper.Config, cb scraper.Callbacks) (*scraper.Result, error)
}

// Deps wires the orchestrator's collaborators. Launch and NewPipeline are
// factories so the browser is only started once a run actually begins.
type Deps struct {
	Runs        SearchRunStore
	Jobs        JobStore
	Session     SessionLoader
	Publisher   *events.Publisher
	Launch      func(state json.RawMessage, headless bool) (BrowserSession, error)
	NewPipeline func(b BrowserSession) Pipeline
	Logger      *slog.Logger
}

type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		logger: deps.Logger.With("component", "orchestrator"),
	}
}

// Scrape executes one run end to end. Fatal failures before extraction mark
// the run failed and return a summary with Success=false; item-level
// failures are recorded and never abort the run. The search-run record
// always ends in a terminal status and the browser is always closed.
func (o *Orchestrator) Scrape(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return &Summary{Success: false, Errors: []string{err.Error()}}, err
	}

	filtersJSON, err := json.Marshal(opts.Filters)
	if err != nil {
		return &Summary{Success: false}, fmt.Errorf("failed to serialize filters: %w", err)
	}

	run := &models.SearchRun{
		Query:    opts.Filters.Position,
		Location: opts.Filters.Location,
		Filters:  filtersJSON,
	}
	if err := o.deps.Runs.Create(ctx, run); err != nil {
		return &Summary{Success: false}, err
	}

	summary := &Summary{SearchID: run.ID}
	o.logger.Info("scrape run started", "search_id", run.ID, "query", run.Query, "limit", opts.Limit)

	state, err := o.loadSession()
	if err != nil {
		return o.abort(ctx, run.ID, summary, models.ErrorCategoryAuth, err)
	}

	browserSession, err := o.deps.Launch(state, opts.Headless)
	if err != nil {
		return o.abort(ctx, run.ID, summary, models.ErrorCategoryFatal,
			fmt.Errorf("failed to launch browser: %w", err))
	}
	defer func() {
		if err := browserSession.Close(); err != nil {
			o.logger.Error("browser teardown failed", "error", err)
		}
	}()

	searchURL := query.BuildSearchURL(opts.Filters)
	pipeline := o.deps.NewPipeline(browserSession)

	totalSeen := 0
	callbacks := scraper.Callbacks{
		OnItem: func(ctx context.Context, item *scraper.Item) scraper.Outcome {
			totalSeen++
			o.recordTotal(ctx, run.ID, totalSeen)
			return o.persistItem(ctx, run.ID, item, summary)
		},
		OnItemError: func(ctx context.Context, pageURL string, lerr parser.ListingError) {
			totalSeen++
			o.recordTotal(ctx, run.ID, totalSeen)
			o.recordError(ctx, run.ID, models.ErrorCategoryExtraction, pageURL, nil, lerr)
			o.countFailed(ctx, run.ID, summary)
		},
		OnPageError: func(ctx context.Context, pageURL string, err error) {
			o.recordError(ctx, run.ID, models.ErrorCategoryNavigation, pageURL, nil, err)
		},
	}

	result, pipeErr := pipeline.Run(ctx, browserSession.Page(), scraper.Config{
		SearchURL:    searchURL,
		Limit:        opts.Limit,
		PageTimeout:  opts.PageTimeout,
		MaxRetries:   opts.MaxRetries,
		FetchDetails: opts.FetchDetails,
		Snapshot:     opts.Snapshot,
	}, callbacks)

	switch {
	case pipeErr == nil:
		o.finalize(ctx, run.ID, models.SearchCompleted)
		summary.Success = true
	case errors.Is(pipeErr, context.Canceled) || errors.Is(pipeErr, context.DeadlineExceeded):
		o.logger.Warn("run cancelled", "search_id", run.ID)
		o.finalize(context.WithoutCancel(ctx), run.ID, models.SearchCancelled)
		summary.Errors = append(summary.Errors, "run cancelled")
	case errors.Is(pipeErr, scraper.ErrLoginRequired):
		o.recordError(ctx, run.ID, models.ErrorCategoryFatal, searchURL, nil, pipeErr)
		o.finalize(ctx, run.ID, models.SearchFailed)
		summary.Errors = append(summary.Errors, pipeErr.Error())
	default:
		o.recordError(ctx, run.ID, models.ErrorCategoryFatal, searchURL, nil, pipeErr)
		o.finalize(ctx, run.ID, models.SearchFailed)
		summary.Errors = append(summary.Errors, pipeErr.Error())
	}

	if result != nil {
		o.logger.Info("scrape run finished",
			"search_id", run.ID,
			"pages", result.Pages,
			"seen", result.TotalSeen,
			"scraped", summary.TotalScraped,
			"duplicates", summary.Duplicates,
			"failed", summary.Failed,
			"success", summary.Success)
	}

	if pipeErr != nil && !summary.Success {
		return summary, pipeErr
	}
	return summary, nil
}

// loadSession restores saved state, rejecting missing, corrupt or expired
// sessions before any browser work.
func (o *Orchestrator) loadSession() (json.RawMessage, error) {
	state, err := o.deps.Session.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionRequired, err)
	}
	if time.Since(state.SavedAt) > session.MaxAge {
		return nil, fmt.Errorf("%w: session expired", ErrSessionRequired)
	}
	return state.Storage, nil
}

// persistItem routes one extracted listing through dedup and persistence
// and reports its final classification.
func (o *Orchestrator) persistItem(ctx context.Context, searchID uuid.UUID, item *scraper.Item, summary *Summary) scraper.Outcome {
	job := o.buildJob(searchID, item)

	// Known postings get refreshed, not re-announced; the pre-check keeps
	// event assembly off the duplicate path. The upsert's inserted flag
	// still gates the actual outbox write.
	known, err := o.deps.Jobs.Exists(ctx, job.ExternalID)
	if err != nil {
		o.logger.Error("dedup pre-check failed", "external_id", job.ExternalID, "error", err)
	}

	var event *database.OutboxEvent
	if !known && o.deps.Publisher != nil {
		ev, err := o.deps.Publisher.JobDiscovered(job)
		if err != nil {
			o.logger.Error("failed to build discovery event", "external_id", job.ExternalID, "error", err)
		} else {
			event = ev
		}
	}

	inserted, err := o.deps.Jobs.UpsertWithEvent(ctx, job, event)
	if err != nil {
		o.recordError(ctx, searchID, models.ErrorCategoryPersistence, job.URL, &job.ExternalID, err)
		o.countFailed(ctx, searchID, summary)
		return scraper.OutcomeFailure
	}

	if !inserted {
		summary.Duplicates++
		o.logger.Debug("duplicate listing", "external_id", job.ExternalID)
		return scraper.OutcomeDuplicate
	}

	if err := o.deps.Runs.IncrementSuccessful(ctx, searchID); err != nil {
		o.logger.Error("failed to increment success counter", "error", err)
	}
	summary.TotalScraped++
	return scraper.OutcomeSuccess
}

func (o *Orchestrator) buildJob(searchID uuid.UUID, item *scraper.Item) *models.Job {
	listing := item.Listing

	raw, _ := json.Marshal(listing)
	job := &models.Job{
		ExternalID: listing.ExternalID,
		Title:      listing.Title,
		Company:    listing.Company,
		Location:   listing.Location,
		URL:        listing.URL,
		PostedAt:   item.PostedAt,
		ScrapedAt:  time.Now(),
		SearchID:   searchID,
		RawPayload: raw,
	}
	if listing.CompanyID != "" {
		job.CompanyID = &listing.CompanyID
	}
	if item.PageSnapshot != "" {
		job.PageSnapshot = &item.PageSnapshot
	}

	if d := item.Detail; d != nil {
		job.Description = d.Description
		if d.EmploymentType != "" {
			job.EmploymentType = &d.EmploymentType
		}
		if d.SeniorityLevel != "" {
			job.SeniorityLevel = &d.SeniorityLevel
		}
		if d.Industry != "" {
			job.Industry = &d.Industry
		}
		if d.ApplyURL != "" {
			job.ApplyURL = &d.ApplyURL
		}
		if d.SalaryMin > 0 {
			job.SalaryMin = &d.SalaryMin
			job.SalaryMax = &d.SalaryMax
			if d.SalaryCurrency != "" {
				job.SalaryCurrency = &d.SalaryCurrency
			}
		}
	}

	return job
}

// abort finalizes a run that failed before extraction started.
func (o *Orchestrator) abort(ctx context.Context, searchID uuid.UUID, summary *Summary, category string, cause error) (*Summary, error) {
	o.recordError(ctx, searchID, category, "", nil, cause)
	o.finalize(ctx, searchID, models.SearchFailed)
	summary.Errors = append(summary.Errors, cause.Error())
	return summary, cause
}

func (o *Orchestrator) finalize(ctx context.Context, searchID uuid.UUID, status models.SearchStatus) {
	if err := o.deps.Runs.Finalize(ctx, searchID, status); err != nil {
		o.logger.Error("failed to finalize run", "search_id", searchID, "error", err)
	}
}

func (o *Orchestrator) recordTotal(ctx context.Context, searchID uuid.UUID, total int) {
	if err := o.deps.Runs.SetTotalResults(ctx, searchID, total); err != nil {
		o.logger.Error("failed to update total results", "error", err)
	}
}

func (o *Orchestrator) countFailed(ctx context.Context, searchID uuid.UUID, summary *Summary) {
	summary.Failed++
	if err := o.deps.Runs.IncrementFailed(ctx, searchID); err != nil {
		o.logger.Error("failed to increment failure counter", "error", err)
	}
}

func (o *Orchestrator) recordError(ctx context.Context, searchID uuid.UUID, category, url string, externalID *string, cause error) {
	e := &models.ScrapeError{
		SearchID:   searchID,
		ExternalID: externalID,
		Message:    cause.Error(),
		Category:   category,
	}
	if url != "" {
		e.URL = &url
	}

	if err := o.deps.Runs.LogError(ctx, e); err != nil {
		o.logger.Error("failed to log scrape error", "error", err, "cause", cause)
	}
}
