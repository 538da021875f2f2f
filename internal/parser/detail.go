package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detail holds the fields available only on a posting's own page.
type Detail struct {
	Description    string
	EmploymentType string
	SeniorityLevel string
	Industry       string
	ApplyURL       string
	SalaryMin      float64
	SalaryMax      float64
	SalaryCurrency string
}

var salaryPattern = regexp.MustCompile(`([$€£])\s?([\d,]+(?:\.\d+)?)\s*([KkMm])?(?:/\w+)?\s*[-–]\s*[$€£]?\s?([\d,]+(?:\.\d+)?)\s*([KkMm])?`)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

type DetailParser struct{}

func NewDetailParser() *DetailParser {
	return &DetailParser{}
}

// ParseDetail extracts description and criteria fields from a job page.
// Missing sections leave their fields zero; only unparseable HTML errors.
func (p *DetailParser) ParseDetail(html string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Detail{}

	desc := doc.Find(".jobs-description__content, .description__text, #job-details").First()
	if goquery.NodeName(desc) != "" {
		if markup, err := desc.Html(); err == nil {
			d.Description = strings.TrimSpace(markup)
		}
	}

	// The criteria list pairs a header with its value, e.g.
	// "Seniority level" / "Mid-Senior level".
	doc.Find(".description__job-criteria-item, .job-criteria__item").Each(func(_ int, item *goquery.Selection) {
		header := strings.TrimSpace(item.Find("h3").First().Text())
		value := strings.TrimSpace(item.Find("span").First().Text())
		if value == "" {
			return
		}

		switch {
		case strings.EqualFold(header, "Seniority level"):
			d.SeniorityLevel = value
		case strings.EqualFold(header, "Employment type"):
			d.EmploymentType = value
		case strings.EqualFold(header, "Industries"):
			d.Industry = value
		}
	})

	if href, ok := doc.Find("a[data-tracking-control-name*='apply'], .jobs-apply-button--top-card a").First().Attr("href"); ok {
		d.ApplyURL = strings.TrimSpace(href)
	}

	salaryText := doc.Find(".salary, .compensation__salary, .jobs-unified-top-card__salary-details").First().Text()
	if salaryText == "" {
		salaryText = doc.Find("body").Text()
	}
	if min, max, currency, ok := ParseSalary(salaryText); ok {
		d.SalaryMin = min
		d.SalaryMax = max
		d.SalaryCurrency = currency
	}

	return d, nil
}

// ParseSalary finds a salary range like "$95K/yr - $120K/yr" or
// "€60,000 - €80,000" in free text.
func ParseSalary(text string) (min, max float64, currency string, ok bool) {
	m := salaryPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, "", false
	}

	min = parseAmount(m[2], m[3])
	max = parseAmount(m[4], m[5])
	if min == 0 || max == 0 || max < min {
		return 0, 0, "", false
	}

	return min, max, currencySymbols[m[1]], true
}

func parseAmount(number, suffix string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil {
		return 0
	}

	switch strings.ToUpper(suffix) {
	case "K":
		v *= 1_000
	case "M":
		v *= 1_000_000
	}
	return v
}
