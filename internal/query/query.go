// Package query translates structured search filters into the site's search
// URL. All knowledge of the query-parameter encoding lives here.
package query

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	baseSearchURL = "https://www.linkedin.com/jobs/search/"

	// ResultsPerPage is the number of listings the site serves per results
	// page; pagination advances the start offset in these steps.
	ResultsPerPage = 25
)

// Filters is the fully-enumerated search request. Zero values mean "no
// constraint" and omit their parameter entirely.
type Filters struct {
	Position         string   `json:"position,omitempty"`
	Location         string   `json:"location,omitempty"`
	ExperienceLevels []string `json:"experience_levels,omitempty"`
	EmploymentTypes  []string `json:"employment_types,omitempty"`
	DatePosted       string   `json:"date_posted,omitempty"`
	WorkplaceTypes   []string `json:"workplace_types,omitempty"`
}

var experienceCodes = map[string]string{
	"Internship":       "1",
	"Entry level":      "2",
	"Associate":        "3",
	"Mid-Senior level": "4",
	"Director":         "5",
	"Executive":        "6",
}

var employmentCodes = map[string]string{
	"Full-time":  "F",
	"Part-time":  "P",
	"Contract":   "C",
	"Temporary":  "T",
	"Internship": "I",
	"Volunteer":  "V",
	"Other":      "O",
}

var datePostedCodes = map[string]string{
	"Past 24 hours": "r86400",
	"Past Week":     "r604800",
	"Past Month":    "r2592000",
}

var workplaceCodes = map[string]string{
	"On-site": "1",
	"Remote":  "2",
	"Hybrid":  "3",
}

// BuildSearchURL maps filters onto the search endpoint. Values with no code
// mapping are dropped; they are logically "no constraint" and never raise.
func BuildSearchURL(f Filters) string {
	params := url.Values{}

	if f.Position != "" {
		params.Set("keywords", f.Position)
	}
	if f.Location != "" {
		params.Set("location", f.Location)
	}
	if codes := mapCodes(f.ExperienceLevels, experienceCodes); codes != "" {
		params.Set("f_E", codes)
	}
	if codes := mapCodes(f.EmploymentTypes, employmentCodes); codes != "" {
		params.Set("f_JT", codes)
	}
	if code, ok := datePostedCodes[f.DatePosted]; ok {
		params.Set("f_TPR", code)
	}
	if codes := mapCodes(f.WorkplaceTypes, workplaceCodes); codes != "" {
		params.Set("f_WT", codes)
	}

	if len(params) == 0 {
		return baseSearchURL
	}
	return baseSearchURL + "?" + params.Encode()
}

// PageURL appends the pagination offset for the given zero-based page.
func PageURL(searchURL string, page int) string {
	if page <= 0 {
		return searchURL
	}

	sep := "?"
	if strings.Contains(searchURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sstart=%d", searchURL, sep, page*ResultsPerPage)
}

func mapCodes(values []string, table map[string]string) string {
	var codes []string
	for _, v := range values {
		if code, ok := table[v]; ok {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, ",")
}
