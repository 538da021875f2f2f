// Package export renders stored jobs to portable formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hirehound/jobhound/internal/models"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{
	"external_id", "title", "company", "location", "employment_type",
	"seniority_level", "salary_min", "salary_max", "salary_currency",
	"url", "posted_at", "scraped_at",
}

// Write renders jobs to w in the given format.
func Write(w io.Writer, jobs []*models.Job, format string) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, jobs)
	case FormatCSV:
		return writeCSV(w, jobs)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeJSON(w io.Writer, jobs []*models.Job) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if jobs == nil {
		jobs = []*models.Job{}
	}
	if err := enc.Encode(jobs); err != nil {
		return fmt.Errorf("failed to encode jobs: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, jobs []*models.Job) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, job := range jobs {
		if err := cw.Write(csvRow(job)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(job *models.Job) []string {
	return []string{
		job.ExternalID,
		job.Title,
		job.Company,
		job.Location,
		strDeref(job.EmploymentType),
		strDeref(job.SeniorityLevel),
		floatDeref(job.SalaryMin),
		floatDeref(job.SalaryMax),
		strDeref(job.SalaryCurrency),
		job.URL,
		timeDeref(job.PostedAt),
		job.ScrapedAt.Format(time.RFC3339),
	}
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatDeref(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func timeDeref(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
