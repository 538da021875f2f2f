// Package api exposes the stored jobs and search runs over a read-only
// HTTP surface. Nothing here mutates state; writes stay with the CLI.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hirehound/jobhound/internal/database"
	"github.com/hirehound/jobhound/internal/models"
)

const maxPageSize = 200

// JobReader is the slice of the job repository the API needs.
type JobReader interface {
	FindAll(ctx context.Context, filter database.JobFilter) ([]*models.Job, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Job, error)
	FindBySearchID(ctx context.Context, searchID uuid.UUID) ([]*models.Job, error)
	Search(ctx context.Context, q string, limit int) ([]*models.Job, error)
	Count(ctx context.Context) (int, error)
}

// RunReader is the slice of the search-run repository the API needs.
type RunReader interface {
	FindAll(ctx context.Context, limit int) ([]*models.SearchRun, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SearchRun, error)
	GetErrors(ctx context.Context, searchID uuid.UUID) ([]*models.ScrapeError, error)
}

type Handlers struct {
	jobs   JobReader
	runs   RunReader
	logger *slog.Logger
}

func NewHandlers(jobs JobReader, runs RunReader, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		runs:   runs,
		logger: logger,
	}
}

// JobsResponse wraps a job listing with its result count.
type JobsResponse struct {
	Jobs  []*models.Job `json:"jobs"`
	Count int           `json:"count"`
}

// ListJobs handles filtered job listing requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := database.JobFilter{
		Company:  r.URL.Query().Get("company"),
		Location: r.URL.Query().Get("location"),
		Limit:    h.pageSize(r),
	}

	if raw := r.URL.Query().Get("search_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid search_id")
			return
		}
		filter.SearchID = &id
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.DateFrom = &since
	}

	jobs, err := h.jobs.FindAll(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// SearchJobs handles full-text search requests.
func (h *Handlers) SearchJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	jobs, err := h.jobs.Search(r.Context(), q, h.pageSize(r))
	if err != nil {
		h.logger.Error("search failed", "query", q, "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	h.respondJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// GetJob handles single job retrieval by external identifier.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")

	job, err := h.jobs.FindByExternalID(r.Context(), externalID)
	if err != nil {
		h.logger.Error("failed to fetch job", "external_id", externalID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	if job == nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListSearches handles search-run history requests.
func (h *Handlers) ListSearches(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.FindAll(r.Context(), h.pageSize(r))
	if err != nil {
		h.logger.Error("failed to list search runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list searches")
		return
	}

	h.respondJSON(w, http.StatusOK, runs)
}

// GetSearch handles single search-run retrieval.
func (h *Handlers) GetSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.FindByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch search run", "search_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch search")
		return
	}
	if run == nil {
		h.respondError(w, http.StatusNotFound, "search not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// GetSearchJobs handles listing the jobs captured by one run.
func (h *Handlers) GetSearchJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}

	jobs, err := h.jobs.FindBySearchID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch search jobs", "search_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// GetSearchErrors handles listing the errors recorded for one run.
func (h *Handlers) GetSearchErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := h.searchID(w, r)
	if !ok {
		return
	}

	errs, err := h.runs.GetErrors(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch search errors", "search_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch errors")
		return
	}

	h.respondJSON(w, http.StatusOK, errs)
}

// GetStats handles summary statistics retrieval.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.jobs.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"total_jobs": count,
	})
}

// Health handles liveness checks.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) searchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "searchID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid search ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) pageSize(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
