package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authenticatedCards = `
<ul>
  <li class="scaffold-layout__list-item">
    <div class="job-card-container" data-job-id="4100200300">
      <a class="job-card-container__link" href="/jobs/view/senior-go-engineer-4100200300?refId=abc&trackingId=xyz">
        <strong>Senior Go Engineer</strong>
      </a>
      <div class="artdeco-entity-lockup__subtitle">Acme Corp</div>
      <a href="https://www.linkedin.com/company/acme-corp/life">Acme Corp</a>
      <ul><li class="job-card-container__metadata-item">Berlin, Germany (Hybrid)</li></ul>
      <time datetime="2026-08-25">1 week ago</time>
    </div>
  </li>
  <li class="scaffold-layout__list-item">
    <div class="job-card-container" data-job-id="4100200301">
      <a class="job-card-container__link" href="/jobs/view/4100200301/">
        <strong>Platform Engineer</strong>
      </a>
      <div class="artdeco-entity-lockup__subtitle">Globex</div>
      <ul><li class="job-card-container__metadata-item">Remote</li></ul>
    </div>
  </li>
</ul>`

const guestCards = `
<div>
  <div class="base-card" data-entity-urn="urn:li:jobPosting:3999888777">
    <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/backend-engineer-3999888777?position=1&pageNum=0"></a>
    <h3 class="base-search-card__title">Backend Engineer</h3>
    <h4 class="base-search-card__subtitle">Initech</h4>
    <span class="job-search-card__location">Austin, TX</span>
    <time class="job-search-card__listdate">2 days ago</time>
  </div>
</div>`

const malformedBatch = `
<div>
  <div class="job-card-container" data-job-id="111">
    <a class="job-card-container__link" href="/jobs/view/111/"><strong>Good Job</strong></a>
    <div class="artdeco-entity-lockup__subtitle">Fine Inc</div>
  </div>
  <div class="job-card-container">
    <a class="job-card-container__link" href="/jobs/nothing"><strong>No Identifier</strong></a>
  </div>
  <div class="job-card-container" data-job-id="333">
    <!-- no title anywhere -->
    <div class="artdeco-entity-lockup__subtitle">Mystery Co</div>
  </div>
</div>`

func TestParseListings_AuthenticatedMarkup(t *testing.T) {
	p := NewListingParser()

	listings, errs, err := p.ParseListings(authenticatedCards)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, "4100200300", first.ExternalID)
	assert.Equal(t, "Senior Go Engineer", first.Title)
	assert.Equal(t, "Acme Corp", first.Company)
	assert.Equal(t, "acme-corp", first.CompanyID)
	assert.Equal(t, "Berlin, Germany (Hybrid)", first.Location)
	assert.Equal(t, "1 week ago", first.PostedText)

	// Tracking params must not survive into the canonical URL.
	assert.Equal(t, "https://www.linkedin.com/jobs/view/senior-go-engineer-4100200300", first.URL)

	second := listings[1]
	assert.Equal(t, "4100200301", second.ExternalID)
	assert.Equal(t, "Remote", second.Location)
}

func TestParseListings_GuestMarkup(t *testing.T) {
	p := NewListingParser()

	listings, errs, err := p.ParseListings(guestCards)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, listings, 1)

	l := listings[0]
	assert.Equal(t, "3999888777", l.ExternalID)
	assert.Equal(t, "Backend Engineer", l.Title)
	assert.Equal(t, "Initech", l.Company)
	assert.Equal(t, "Austin, TX", l.Location)
	assert.Equal(t, "https://www.linkedin.com/jobs/view/backend-engineer-3999888777", l.URL)
}

func TestParseListings_MalformedCardsAreSkippedNotFatal(t *testing.T) {
	p := NewListingParser()

	listings, errs, err := p.ParseListings(malformedBatch)
	require.NoError(t, err)

	require.Len(t, listings, 1)
	assert.Equal(t, "111", listings[0].ExternalID)

	require.Len(t, errs, 2)
	assert.Equal(t, 1, errs[0].Index)
	assert.Contains(t, errs[0].Error(), "no job identifier")
	assert.Equal(t, 2, errs[1].Index)
	assert.Contains(t, errs[1].Error(), "no title")
}

func TestParseListings_EmptyPage(t *testing.T) {
	p := NewListingParser()

	listings, errs, err := p.ParseListings("<html><body><div>No results found</div></body></html>")
	require.NoError(t, err)
	assert.Empty(t, listings)
	assert.Empty(t, errs)
}
