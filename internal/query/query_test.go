package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchURL(t *testing.T) {
	tests := []struct {
		name        string
		filters     Filters
		contains    []string
		notContains []string
	}{
		{
			name: "all filters set",
			filters: Filters{
				Position:         "Engineer",
				Location:         "Remote",
				ExperienceLevels: []string{"Associate"},
				EmploymentTypes:  []string{"Full-time"},
				DatePosted:       "Past Week",
			},
			contains: []string{
				"keywords=Engineer",
				"location=Remote",
				"f_E=3",
				"f_JT=F",
				"f_TPR=r604800",
			},
			notContains: []string{"f_WT"},
		},
		{
			name:        "empty filters produce bare endpoint",
			filters:     Filters{},
			contains:    []string{"linkedin.com/jobs/search/"},
			notContains: []string{"keywords", "location", "f_E", "f_JT", "f_TPR", "f_WT"},
		},
		{
			name: "multiple values join with comma",
			filters: Filters{
				ExperienceLevels: []string{"Entry level", "Associate"},
				EmploymentTypes:  []string{"Full-time", "Contract"},
			},
			contains: []string{"f_E=2%2C3", "f_JT=F%2CC"},
		},
		{
			name: "unmapped values are silently dropped",
			filters: Filters{
				ExperienceLevels: []string{"Galactic Overlord", "Associate"},
				DatePosted:       "Sometime",
			},
			contains:    []string{"f_E=3"},
			notContains: []string{"f_TPR", "Galactic"},
		},
		{
			name: "workplace types",
			filters: Filters{
				WorkplaceTypes: []string{"Remote", "Hybrid"},
			},
			contains: []string{"f_WT=2%2C3"},
		},
		{
			name: "position with spaces is escaped",
			filters: Filters{
				Position: "Staff Engineer",
			},
			contains: []string{"keywords=Staff+Engineer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSearchURL(tt.filters)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, not := range tt.notContains {
				assert.NotContains(t, got, not)
			}
		})
	}
}

func TestBuildSearchURL_Deterministic(t *testing.T) {
	f := Filters{
		Position:         "Engineer",
		Location:         "Berlin",
		ExperienceLevels: []string{"Associate", "Director"},
		EmploymentTypes:  []string{"Full-time"},
		DatePosted:       "Past Month",
		WorkplaceTypes:   []string{"Remote"},
	}

	first := BuildSearchURL(f)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, BuildSearchURL(f))
	}
}

func TestPageURL(t *testing.T) {
	base := BuildSearchURL(Filters{Position: "Engineer"})

	assert.Equal(t, base, PageURL(base, 0))
	assert.Contains(t, PageURL(base, 1), "start=25")
	assert.Contains(t, PageURL(base, 4), "start=100")

	// No query string yet: offset starts the query string.
	bare := BuildSearchURL(Filters{})
	assert.Contains(t, PageURL(bare, 2), "?start=50")
}
