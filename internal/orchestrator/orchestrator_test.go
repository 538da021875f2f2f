package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirehound/jobhound/internal/database"
	"github.com/hirehound/jobhound/internal/events"
	"github.com/hirehound/jobhound/internal/models"
	"github.com/hirehound/jobhound/internal/parser"
	"github.com/hirehound/jobhound/internal/query"
	"github.com/hirehound/jobhound/internal/scraper"
	"github.com/hirehound/jobhound/internal/session"
)

type fakeRuns struct {
	run        *models.SearchRun
	total      int
	successful int
	failed     int
	finalized  *models.SearchStatus
	errors     []*models.ScrapeError
}

func (f *fakeRuns) Create(_ context.Context, run *models.SearchRun) error {
	run.ID = uuid.New()
	run.Status = models.SearchRunning
	run.StartedAt = time.Now()
	f.run = run
	return nil
}

func (f *fakeRuns) SetTotalResults(_ context.Context, _ uuid.UUID, total int) error {
	f.total = total
	return nil
}

func (f *fakeRuns) IncrementSuccessful(_ context.Context, _ uuid.UUID) error {
	f.successful++
	return nil
}

func (f *fakeRuns) IncrementFailed(_ context.Context, _ uuid.UUID) error {
	f.failed++
	return nil
}

func (f *fakeRuns) Finalize(_ context.Context, _ uuid.UUID, status models.SearchStatus) error {
	if f.finalized != nil {
		return fmt.Errorf("run already finalized as %s", *f.finalized)
	}
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	f.finalized = &status
	return nil
}

func (f *fakeRuns) LogError(_ context.Context, e *models.ScrapeError) error {
	f.errors = append(f.errors, e)
	return nil
}

type fakeJobs struct {
	existing map[string]bool
	failIDs  map[string]bool
	upserts  []*models.Job
	events   []*database.OutboxEvent
}

func (f *fakeJobs) Exists(_ context.Context, externalID string) (bool, error) {
	return f.existing[externalID], nil
}

func (f *fakeJobs) UpsertWithEvent(_ context.Context, job *models.Job, event *database.OutboxEvent) (bool, error) {
	if f.failIDs[job.ExternalID] {
		return false, errors.New("connection reset")
	}
	f.upserts = append(f.upserts, job)
	f.events = append(f.events, event)
	if f.existing[job.ExternalID] {
		return false, nil
	}
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	f.existing[job.ExternalID] = true
	return true, nil
}

type fakeSession struct {
	state *session.State
	err   error
}

func (f *fakeSession) Load() (*session.State, error) {
	return f.state, f.err
}

type fakeBrowser struct {
	closed bool
}

func (f *fakeBrowser) Page() playwright.Page { return nil }
func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

// fakePipeline replays a scripted results page through the callbacks with
// the same accounting as the real pipeline.
type fakePipeline struct {
	listings  []parser.Listing
	malformed []parser.ListingError
	err       error
}

func (f *fakePipeline) Run(ctx context.Context, _ playwright.Page, cfg scraper.Config, cb scraper.Callbacks) (*scraper.Result, error) {
	result := &scraper.Result{Pages: 1}

	for _, lerr := range f.malformed {
		result.TotalSeen++
		result.Failures++
		cb.OnItemError(ctx, cfg.SearchURL, lerr)
	}

	for i := range f.listings {
		result.TotalSeen++
		switch cb.OnItem(ctx, &scraper.Item{Listing: f.listings[i]}) {
		case scraper.OutcomeSuccess:
			result.Successes++
		case scraper.OutcomeDuplicate:
			result.Duplicates++
		case scraper.OutcomeFailure:
			result.Failures++
		}
		if cfg.Limit > 0 && result.Successes >= cfg.Limit {
			return result, f.err
		}
	}

	return result, f.err
}

func validState() *session.State {
	return &session.State{
		SavedAt: time.Now().Add(-time.Hour),
		Storage: json.RawMessage(`{"cookies":[]}`),
	}
}

func newTestOrchestrator(runs *fakeRuns, jobs *fakeJobs, sess *fakeSession, b *fakeBrowser, p *fakePipeline) *Orchestrator {
	return New(Deps{
		Runs:    runs,
		Jobs:    jobs,
		Session: sess,
		Launch: func(_ json.RawMessage, _ bool) (BrowserSession, error) {
			return b, nil
		},
		NewPipeline: func(_ BrowserSession) Pipeline {
			return p
		},
		Logger: slog.New(slog.NewTextHandler(testWriter{}, nil)),
	})
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func makeListings(n int) []parser.Listing {
	listings := make([]parser.Listing, n)
	for i := range listings {
		listings[i] = parser.Listing{
			ExternalID: fmt.Sprintf("40%05d", i),
			Title:      "Backend Engineer",
			Company:    "Acme",
			Location:   "Berlin, Germany",
			URL:        fmt.Sprintf("https://www.linkedin.com/jobs/view/40%05d/", i),
		}
	}
	return listings
}

func TestScrapeAccountsForEveryListing(t *testing.T) {
	listings := makeListings(11)
	runs := &fakeRuns{}
	jobs := &fakeJobs{
		// Two listings were already stored by an earlier run.
		existing: map[string]bool{
			listings[2].ExternalID: true,
			listings[7].ExternalID: true,
		},
	}
	b := &fakeBrowser{}
	p := &fakePipeline{
		listings: listings,
		malformed: []parser.ListingError{
			{Index: 4, Err: errors.New("listing card missing job id")},
		},
	}

	o := newTestOrchestrator(runs, jobs, &fakeSession{state: validState()}, b, p)

	summary, err := o.Scrape(context.Background(), Options{
		Filters: query.Filters{Position: "Backend Engineer", Location: "Berlin"},
		Limit:   10,
	})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 9, summary.TotalScraped)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, runs.run.ID, summary.SearchID)

	// Every raw listing lands in exactly one bucket.
	assert.Equal(t, 12, summary.TotalScraped+summary.Duplicates+summary.Failed)
	assert.Equal(t, 12, runs.total)

	require.NotNil(t, runs.finalized)
	assert.Equal(t, models.SearchCompleted, *runs.finalized)
	assert.Equal(t, 9, runs.successful)
	assert.Equal(t, 1, runs.failed)

	require.Len(t, runs.errors, 1)
	assert.Equal(t, models.ErrorCategoryExtraction, runs.errors[0].Category)

	assert.True(t, b.closed)
}

func TestScrapeStopsAtLimit(t *testing.T) {
	runs := &fakeRuns{}
	jobs := &fakeJobs{}
	b := &fakeBrowser{}
	p := &fakePipeline{listings: makeListings(30)}

	o := newTestOrchestrator(runs, jobs, &fakeSession{state: validState()}, b, p)

	summary, err := o.Scrape(context.Background(), Options{
		Filters: query.Filters{Position: "Engineer"},
		Limit:   10,
	})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 10, summary.TotalScraped)
	assert.Len(t, jobs.upserts, 10)
}

func TestScrapeRejectsBadLimit(t *testing.T) {
	runs := &fakeRuns{}
	o := newTestOrchestrator(runs, &fakeJobs{}, &fakeSession{state: validState()}, &fakeBrowser{}, &fakePipeline{})

	summary, err := o.Scrape(context.Background(), Options{Limit: 1001})
	require.ErrorIs(t, err, ErrInvalidOptions)
	assert.False(t, summary.Success)
	assert.Nil(t, runs.run, "no run record for rejected options")
}

func TestScrapeFailsWithoutSession(t *testing.T) {
	tests := []struct {
		name string
		sess *fakeSession
	}{
		{
			name: "missing",
			sess: &fakeSession{err: session.ErrNotFound},
		},
		{
			name: "corrupt",
			sess: &fakeSession{err: session.ErrCorrupt},
		},
		{
			name: "expired",
			sess: &fakeSession{state: &session.State{
				SavedAt: time.Now().Add(-25 * time.Hour),
				Storage: json.RawMessage(`{}`),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &fakeRuns{}
			b := &fakeBrowser{}
			o := newTestOrchestrator(runs, &fakeJobs{}, tt.sess, b, &fakePipeline{})

			summary, err := o.Scrape(context.Background(), Options{
				Filters: query.Filters{Position: "Engineer"},
			})
			require.ErrorIs(t, err, ErrSessionRequired)

			assert.False(t, summary.Success)
			require.NotNil(t, runs.finalized)
			assert.Equal(t, models.SearchFailed, *runs.finalized)
			require.Len(t, runs.errors, 1)
			assert.Equal(t, models.ErrorCategoryAuth, runs.errors[0].Category)
			assert.False(t, b.closed, "browser never launched")
		})
	}
}

func TestScrapeLoginWallAbortsRun(t *testing.T) {
	runs := &fakeRuns{}
	b := &fakeBrowser{}
	p := &fakePipeline{
		listings: makeListings(3),
		err:      scraper.ErrLoginRequired,
	}

	o := newTestOrchestrator(runs, &fakeJobs{}, &fakeSession{state: validState()}, b, p)

	summary, err := o.Scrape(context.Background(), Options{
		Filters: query.Filters{Position: "Engineer"},
	})
	require.ErrorIs(t, err, scraper.ErrLoginRequired)

	assert.False(t, summary.Success)
	// Items processed before the wall stay persisted.
	assert.Equal(t, 3, summary.TotalScraped)
	require.NotNil(t, runs.finalized)
	assert.Equal(t, models.SearchFailed, *runs.finalized)
	assert.True(t, b.closed)

	fatal := runs.errors[len(runs.errors)-1]
	assert.Equal(t, models.ErrorCategoryFatal, fatal.Category)
}

func TestScrapeCancellation(t *testing.T) {
	runs := &fakeRuns{}
	b := &fakeBrowser{}
	p := &fakePipeline{
		listings: makeListings(5),
		err:      context.Canceled,
	}

	o := newTestOrchestrator(runs, &fakeJobs{}, &fakeSession{state: validState()}, b, p)

	summary, err := o.Scrape(context.Background(), Options{
		Filters: query.Filters{Position: "Engineer"},
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.False(t, summary.Success)
	require.NotNil(t, runs.finalized)
	assert.Equal(t, models.SearchCancelled, *runs.finalized)
	assert.True(t, b.closed)
}

func TestScrapeBuildsDiscoveryEventsForNewJobsOnly(t *testing.T) {
	listings := makeListings(3)
	runs := &fakeRuns{}
	jobs := &fakeJobs{existing: map[string]bool{listings[1].ExternalID: true}}
	b := &fakeBrowser{}
	p := &fakePipeline{listings: listings}

	o := New(Deps{
		Runs:      runs,
		Jobs:      jobs,
		Session:   &fakeSession{state: validState()},
		Publisher: events.NewPublisher("stream:job_discovered"),
		Launch: func(_ json.RawMessage, _ bool) (BrowserSession, error) {
			return b, nil
		},
		NewPipeline: func(_ BrowserSession) Pipeline {
			return p
		},
		Logger: slog.New(slog.NewTextHandler(testWriter{}, nil)),
	})

	summary, err := o.Scrape(context.Background(), Options{
		Filters: query.Filters{Position: "Engineer"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalScraped)
	assert.Equal(t, 1, summary.Duplicates)

	// One event per upsert slot; the already-known posting carries none.
	require.Len(t, jobs.events, 3)
	assert.NotNil(t, jobs.events[0])
	assert.Nil(t, jobs.events[1])
	assert.NotNil(t, jobs.events[2])
	assert.Equal(t, listings[0].ExternalID, jobs.events[0].AggregateID)
}

func TestScrapePersistenceFailureIsNonFatal(t *testing.T) {
	listings := makeListings(4)
	runs := &fakeRuns{}
	jobs := &fakeJobs{failIDs: map[string]bool{listings[1].ExternalID: true}}
	p := &fakePipeline{listings: listings}

	o := newTestOrchestrator(runs, jobs, &fakeSession{state: validState()}, &fakeBrowser{}, p)

	summary, err := o.Scrape(context.Background(), Options{
		Filters: query.Filters{Position: "Engineer"},
	})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, 3, summary.TotalScraped)
	assert.Equal(t, 1, summary.Failed)

	require.Len(t, runs.errors, 1)
	assert.Equal(t, models.ErrorCategoryPersistence, runs.errors[0].Category)
	require.NotNil(t, runs.errors[0].ExternalID)
	assert.Equal(t, listings[1].ExternalID, *runs.errors[0].ExternalID)

	require.NotNil(t, runs.finalized)
	assert.Equal(t, models.SearchCompleted, *runs.finalized)
}
