package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`(?i)(\d+)\+?\s*(minute|hour|day|week|month|year)s?\s+ago`)

// ParseRelativeDate converts the site's relative posting age ("3 weeks ago",
// "Reposted 2 days ago", "Just now") into an absolute instant anchored at
// now. Months and years use calendar arithmetic.
func ParseRelativeDate(text string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "just now") || strings.Contains(lower, "today") {
		return now, nil
	}
	if strings.Contains(lower, "yesterday") {
		return now.AddDate(0, 0, -1), nil
	}

	m := relativePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized relative date: %q", trimmed)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized relative date: %q", trimmed)
	}

	switch strings.ToLower(m[2]) {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute), nil
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), nil
	case "day":
		return now.AddDate(0, 0, -n), nil
	case "week":
		return now.AddDate(0, 0, -7*n), nil
	case "month":
		return now.AddDate(0, -n, 0), nil
	case "year":
		return now.AddDate(-n, 0, 0), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized relative date: %q", trimmed)
}
