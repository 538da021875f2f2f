// Package scraper drives the page-by-page extraction of search results
// through a live browser session.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/hirehound/jobhound/internal/browser"
	"github.com/hirehound/jobhound/internal/parser"
	"github.com/hirehound/jobhound/internal/query"
	"github.com/hirehound/jobhound/internal/ratelimit"
)

// ErrLoginRequired signals that the site pushed the session to a login wall
// mid-run. Unlike page-level failures it aborts the whole run.
var ErrLoginRequired = errors.New("login wall encountered")

const listingContainerSelector = "div.job-card-container, div.base-card, li.jobs-search-results__list-item"

// Outcome classifies one extracted listing. Every listing dispatched to the
// handler lands in exactly one bucket.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDuplicate
	OutcomeFailure
)

// Item is one extracted listing handed to the run's handler, optionally
// enriched with detail-page fields and a markup snapshot.
type Item struct {
	Listing      parser.Listing
	Detail       *parser.Detail
	PostedAt     *time.Time
	PageSnapshot string
}

// Callbacks route pipeline events back to the orchestrator. OnItem must
// report how the item was finally classified; the success count drives the
// item cap.
type Callbacks struct {
	OnItem      func(ctx context.Context, item *Item) Outcome
	OnItemError func(ctx context.Context, pageURL string, lerr parser.ListingError)
	OnPageError func(ctx context.Context, pageURL string, err error)
}

// Result summarizes one pipeline run.
type Result struct {
	Pages      int
	TotalSeen  int
	Successes  int
	Duplicates int
	Failures   int
}

type Config struct {
	SearchURL    string
	Limit        int
	PageTimeout  time.Duration
	MaxRetries   int
	FetchDetails bool
	Snapshot     bool
}

// Pipeline walks result pages until the success cap is reached or the feed
// runs dry. Pagination is paced through the limiter; page-level failures are
// reported and treated as end-of-results, never as run failures.
type Pipeline struct {
	browser  *browser.Browser
	listings *parser.ListingParser
	details  *parser.DetailParser
	limiter  *ratelimit.BackoffLimiter
	logger   *slog.Logger
}

func NewPipeline(b *browser.Browser, limiter *ratelimit.BackoffLimiter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		browser:  b,
		listings: parser.NewListingParser(),
		details:  parser.NewDetailParser(),
		limiter:  limiter,
		logger:   logger.With("component", "pipeline"),
	}
}

// Run executes the load → wait → extract → check-limit loop over one search.
// It returns ErrLoginRequired when the session is bounced to a login wall
// and ctx.Err() when cancelled; both leave the partial result intact.
func (p *Pipeline) Run(ctx context.Context, page playwright.Page, cfg Config, cb Callbacks) (*Result, error) {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	result := &Result{}
	seen := make(map[string]bool)

	for pageNum := 0; ; pageNum++ {
		// Cancellation stops before the next page load; the item being
		// processed when the signal arrived has already finished.
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if pageNum > 0 {
			if err := p.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		pageURL := query.PageURL(cfg.SearchURL, pageNum)
		p.logger.Info("loading results page", "page", pageNum, "url", pageURL)

		if err := p.browser.NavigateWithRetry(page, pageURL, cfg.MaxRetries); err != nil {
			p.limiter.RecordError()
			cb.OnPageError(ctx, pageURL, err)
			p.logger.Warn("page load failed, treating as end of results", "page", pageNum, "error", err)
			return result, nil
		}

		if browser.IsLoginWall(page) {
			return result, ErrLoginRequired
		}

		if err := p.waitStable(page, cfg.PageTimeout); err != nil {
			p.limiter.RecordError()
			cb.OnPageError(ctx, pageURL, err)
			p.logger.Warn("listing container never stabilized, treating as end of results", "page", pageNum)
			return result, nil
		}

		if err := browser.HumanScroll(page); err != nil {
			p.logger.Debug("scroll failed", "error", err)
		}
		if err := browser.MouseJiggle(page); err != nil {
			p.logger.Debug("mouse move failed", "error", err)
		}

		html, err := page.Content()
		if err != nil {
			p.limiter.RecordError()
			cb.OnPageError(ctx, pageURL, fmt.Errorf("failed to read page content: %w", err))
			return result, nil
		}

		listings, listingErrs, err := p.listings.ParseListings(html)
		if err != nil {
			p.limiter.RecordError()
			cb.OnPageError(ctx, pageURL, err)
			return result, nil
		}

		for _, lerr := range listingErrs {
			result.TotalSeen++
			result.Failures++
			cb.OnItemError(ctx, pageURL, lerr)
		}

		newOnPage := 0
		for i := range listings {
			listing := listings[i]
			if seen[listing.ExternalID] {
				continue
			}
			seen[listing.ExternalID] = true
			newOnPage++
			result.TotalSeen++

			item := p.buildItem(ctx, page, listing, cfg, cb)

			switch cb.OnItem(ctx, item) {
			case OutcomeSuccess:
				result.Successes++
			case OutcomeDuplicate:
				result.Duplicates++
			case OutcomeFailure:
				result.Failures++
			}

			if cfg.Limit > 0 && result.Successes >= cfg.Limit {
				p.logger.Info("item cap reached", "limit", cfg.Limit)
				result.Pages = pageNum + 1
				return result, nil
			}
		}

		result.Pages = pageNum + 1
		p.limiter.RecordSuccess()

		if newOnPage == 0 {
			p.logger.Info("no new listings on page, end of results", "page", pageNum)
			return result, nil
		}
	}
}

// waitStable suspends until the listing container is populated or the
// bounded timeout elapses.
func (p *Pipeline) waitStable(page playwright.Page, timeout time.Duration) error {
	_, err := page.WaitForSelector(listingContainerSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("listing container not found: %w", err)
	}
	return nil
}

// buildItem assembles an item from its listing card, optionally visiting the
// posting's own page in a separate tab. Detail failures degrade to the
// listing-level fields rather than discarding the item.
func (p *Pipeline) buildItem(ctx context.Context, page playwright.Page, listing parser.Listing, cfg Config, cb Callbacks) *Item {
	item := &Item{Listing: listing}

	if listing.PostedText != "" {
		if postedAt, err := parser.ParseRelativeDate(listing.PostedText, time.Now()); err == nil {
			item.PostedAt = &postedAt
		}
	}

	if !cfg.FetchDetails || ctx.Err() != nil {
		return item
	}

	detailPage, err := page.Context().NewPage()
	if err != nil {
		cb.OnPageError(ctx, listing.URL, fmt.Errorf("failed to open detail tab: %w", err))
		return item
	}
	defer detailPage.Close()

	if err := p.browser.NavigateWithRetry(detailPage, listing.URL, 2); err != nil {
		cb.OnPageError(ctx, listing.URL, err)
		return item
	}

	browser.RandomDelay(500, 1500)

	html, err := detailPage.Content()
	if err != nil {
		cb.OnPageError(ctx, listing.URL, fmt.Errorf("failed to read detail page: %w", err))
		return item
	}

	detail, err := p.details.ParseDetail(html)
	if err != nil {
		cb.OnPageError(ctx, listing.URL, err)
		return item
	}
	item.Detail = detail

	if cfg.Snapshot {
		item.PageSnapshot = html
	}

	return item
}
