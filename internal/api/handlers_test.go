package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirehound/jobhound/internal/database"
	"github.com/hirehound/jobhound/internal/models"
)

type fakeJobReader struct {
	jobs       []*models.Job
	lastFilter database.JobFilter
	lastQuery  string
}

func (f *fakeJobReader) FindAll(_ context.Context, filter database.JobFilter) ([]*models.Job, error) {
	f.lastFilter = filter
	return f.jobs, nil
}

func (f *fakeJobReader) FindByExternalID(_ context.Context, externalID string) (*models.Job, error) {
	for _, j := range f.jobs {
		if j.ExternalID == externalID {
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeJobReader) FindBySearchID(_ context.Context, searchID uuid.UUID) ([]*models.Job, error) {
	var out []*models.Job
	for _, j := range f.jobs {
		if j.SearchID == searchID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobReader) Search(_ context.Context, q string, _ int) ([]*models.Job, error) {
	f.lastQuery = q
	return f.jobs, nil
}

func (f *fakeJobReader) Count(_ context.Context) (int, error) {
	return len(f.jobs), nil
}

type fakeRunReader struct {
	runs []*models.SearchRun
	errs []*models.ScrapeError
}

func (f *fakeRunReader) FindAll(_ context.Context, _ int) ([]*models.SearchRun, error) {
	return f.runs, nil
}

func (f *fakeRunReader) FindByID(_ context.Context, id uuid.UUID) (*models.SearchRun, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRunReader) GetErrors(_ context.Context, _ uuid.UUID) ([]*models.ScrapeError, error) {
	return f.errs, nil
}

func newTestServer(jobs *fakeJobReader, runs *fakeRunReader) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return httptest.NewServer(NewRouter(NewHandlers(jobs, runs, logger)))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func sampleJob(externalID string, searchID uuid.UUID) *models.Job {
	return &models.Job{
		ExternalID: externalID,
		Title:      "Platform Engineer",
		Company:    "Acme",
		Location:   "Remote",
		URL:        "https://www.linkedin.com/jobs/view/" + externalID + "/",
		ScrapedAt:  time.Now(),
		SearchID:   searchID,
	}
}

func TestListJobs(t *testing.T) {
	searchID := uuid.New()
	jobs := &fakeJobReader{jobs: []*models.Job{
		sampleJob("4001", searchID),
		sampleJob("4002", searchID),
	}}
	srv := newTestServer(jobs, &fakeRunReader{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs?company=Acme&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body JobsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "Acme", jobs.lastFilter.Company)
	assert.Equal(t, 5, jobs.lastFilter.Limit)
}

func TestListJobsRejectsBadParams(t *testing.T) {
	srv := newTestServer(&fakeJobReader{}, &fakeRunReader{})
	defer srv.Close()

	tests := []struct {
		name string
		path string
	}{
		{"bad search_id", "/api/jobs?search_id=not-a-uuid"},
		{"bad since", "/api/jobs?since=yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetJob(t *testing.T) {
	jobs := &fakeJobReader{jobs: []*models.Job{sampleJob("4001", uuid.New())}}
	srv := newTestServer(jobs, &fakeRunReader{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/4001")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var job models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, "4001", job.ExternalID)

	missing, err := http.Get(srv.URL + "/api/jobs/9999")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSearchJobsRequiresQuery(t *testing.T) {
	jobs := &fakeJobReader{}
	srv := newTestServer(jobs, &fakeRunReader{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ok, err := http.Get(srv.URL + "/api/jobs/search?q=golang")
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, "golang", jobs.lastQuery)
}

func TestGetSearchAndErrors(t *testing.T) {
	run := &models.SearchRun{
		ID:     uuid.New(),
		Query:  "Backend Engineer",
		Status: models.SearchCompleted,
	}
	runs := &fakeRunReader{
		runs: []*models.SearchRun{run},
		errs: []*models.ScrapeError{
			{SearchID: run.ID, Message: "listing card missing job id", Category: models.ErrorCategoryExtraction},
		},
	}
	srv := newTestServer(&fakeJobReader{}, runs)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/searches/" + run.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	errResp, err := http.Get(srv.URL + "/api/searches/" + run.ID.String() + "/errors")
	require.NoError(t, err)
	defer errResp.Body.Close()

	var errs []*models.ScrapeError
	require.NoError(t, json.NewDecoder(errResp.Body).Decode(&errs))
	require.Len(t, errs, 1)
	assert.Equal(t, models.ErrorCategoryExtraction, errs[0].Category)

	bad, err := http.Get(srv.URL + "/api/searches/not-a-uuid")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeJobReader{}, &fakeRunReader{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
