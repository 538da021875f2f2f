package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SearchStatus is the lifecycle state of one scrape run.
type SearchStatus string

const (
	SearchRunning   SearchStatus = "running"
	SearchCompleted SearchStatus = "completed"
	SearchFailed    SearchStatus = "failed"
	SearchCancelled SearchStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s SearchStatus) Terminal() bool {
	return s != SearchRunning
}

// SearchRun represents one end-to-end invocation of the scrape pipeline.
type SearchRun struct {
	ID                uuid.UUID       `json:"id"`
	Query             string          `json:"query"`
	Location          string          `json:"location"`
	Filters           json.RawMessage `json:"filters,omitempty"`
	TotalResults      int             `json:"total_results"`
	SuccessfulScrapes int             `json:"successful_scrapes"`
	FailedScrapes     int             `json:"failed_scrapes"`
	Status            SearchStatus    `json:"status"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Job is one deduplicated posting. ExternalID is the source site's own
// identifier and is unique across all search runs.
type Job struct {
	ID             int64           `json:"id"`
	ExternalID     string          `json:"external_id"`
	Title          string          `json:"title"`
	Company        string          `json:"company"`
	CompanyID      *string         `json:"company_id,omitempty"`
	Location       string          `json:"location"`
	Description    string          `json:"description,omitempty"`
	EmploymentType *string         `json:"employment_type,omitempty"`
	SeniorityLevel *string         `json:"seniority_level,omitempty"`
	Industry       *string         `json:"industry,omitempty"`
	SalaryMin      *float64        `json:"salary_min,omitempty"`
	SalaryMax      *float64        `json:"salary_max,omitempty"`
	SalaryCurrency *string         `json:"salary_currency,omitempty"`
	URL            string          `json:"url"`
	ApplyURL       *string         `json:"apply_url,omitempty"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	ScrapedAt      time.Time       `json:"scraped_at"`
	SearchID       uuid.UUID       `json:"search_id"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	PageSnapshot   *string         `json:"page_snapshot,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ScrapeError is one append-only failure event tied to a search run and,
// when item-scoped, to a specific listing.
type ScrapeError struct {
	ID         int64     `json:"id"`
	SearchID   uuid.UUID `json:"search_id"`
	ExternalID *string   `json:"external_id,omitempty"`
	URL        *string   `json:"url,omitempty"`
	Message    string    `json:"message"`
	Category   string    `json:"category"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Error categories recorded with scrape errors.
const (
	ErrorCategoryNavigation  = "navigation"
	ErrorCategoryExtraction  = "extraction"
	ErrorCategoryPersistence = "persistence"
	ErrorCategoryAuth        = "auth"
	ErrorCategoryFatal       = "fatal"
)
