package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing is one normalized search-result card.
type Listing struct {
	ExternalID string
	Title      string
	Company    string
	CompanyID  string
	Location   string
	URL        string
	PostedText string
}

// ListingError describes one malformed card that was skipped. Index is the
// card's position within the page.
type ListingError struct {
	Index int
	Err   error
}

func (e ListingError) Error() string {
	return fmt.Sprintf("listing %d: %v", e.Index, e.Err)
}

var (
	jobURNPattern     = regexp.MustCompile(`urn:li:jobPosting:(\d+)`)
	jobURLIDPattern   = regexp.MustCompile(`/jobs/view/(?:[^/]*-)?(\d+)`)
	companyIDPattern  = regexp.MustCompile(`/company/([^/?]+)`)
	trackingParamsCut = regexp.MustCompile(`\?.*$`)
)

// ListingParser extracts normalized listings from a loaded results page.
// Both the authenticated card markup and the guest base-card markup are
// recognized; the site serves either depending on session state.
type ListingParser struct{}

func NewListingParser() *ListingParser {
	return &ListingParser{}
}

// ParseListings extracts every recognizable listing from the results page
// HTML. Malformed cards are collected as errors and skipped; the rest of
// the batch is still returned.
func (p *ListingParser) ParseListings(html string) ([]Listing, []ListingError, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	cards := doc.Find("div.job-card-container, div.base-card, li.jobs-search-results__list-item")
	var (
		listings []Listing
		errs     []ListingError
	)

	cards.Each(func(i int, card *goquery.Selection) {
		listing, err := p.parseCard(card)
		if err != nil {
			errs = append(errs, ListingError{Index: i, Err: err})
			return
		}
		listings = append(listings, listing)
	})

	return listings, errs, nil
}

func (p *ListingParser) parseCard(card *goquery.Selection) (Listing, error) {
	var l Listing

	l.ExternalID = p.extractExternalID(card)
	if l.ExternalID == "" {
		return l, fmt.Errorf("no job identifier on card")
	}

	title := card.Find("a.job-card-container__link strong, .base-search-card__title, .job-card-list__title").First()
	l.Title = strings.TrimSpace(title.Text())
	if l.Title == "" {
		// Authenticated markup sometimes nests the title in the link's
		// aria-label instead of a dedicated node.
		if label, ok := card.Find("a.job-card-container__link").First().Attr("aria-label"); ok {
			l.Title = strings.TrimSpace(label)
		}
	}
	if l.Title == "" {
		return l, fmt.Errorf("no title on card")
	}

	company := card.Find(".artdeco-entity-lockup__subtitle, .base-search-card__subtitle, .job-card-container__primary-description").First()
	l.Company = strings.TrimSpace(company.Text())

	if href, ok := card.Find("a[href*='/company/']").First().Attr("href"); ok {
		if m := companyIDPattern.FindStringSubmatch(href); m != nil {
			l.CompanyID = m[1]
		}
	}

	location := card.Find(".job-card-container__metadata-item, .job-search-card__location, .artdeco-entity-lockup__caption").First()
	l.Location = strings.TrimSpace(location.Text())

	if href, ok := card.Find("a.job-card-container__link, a.base-card__full-link").First().Attr("href"); ok {
		l.URL = canonicalJobURL(href, l.ExternalID)
	} else {
		l.URL = fmt.Sprintf("https://www.linkedin.com/jobs/view/%s/", l.ExternalID)
	}

	posted := card.Find("time, .job-search-card__listdate").First()
	l.PostedText = strings.TrimSpace(posted.Text())

	return l, nil
}

func (p *ListingParser) extractExternalID(card *goquery.Selection) string {
	if id, ok := card.Attr("data-job-id"); ok && id != "" {
		return id
	}
	if urn, ok := card.Attr("data-entity-urn"); ok {
		if m := jobURNPattern.FindStringSubmatch(urn); m != nil {
			return m[1]
		}
	}
	if href, ok := card.Find("a[href*='/jobs/view/']").First().Attr("href"); ok {
		if m := jobURLIDPattern.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

// canonicalJobURL strips tracking parameters so the same posting always
// yields the same URL.
func canonicalJobURL(href, externalID string) string {
	href = trackingParamsCut.ReplaceAllString(href, "")
	if href == "" {
		return fmt.Sprintf("https://www.linkedin.com/jobs/view/%s/", externalID)
	}
	if strings.HasPrefix(href, "/") {
		return "https://www.linkedin.com" + href
	}
	return href
}
