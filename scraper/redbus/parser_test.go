package redbus

import (
	"testing"

	"redbus-scraper/models"
)

const fixturePage = `
<html><body>
  <div class="bus-item" data-busid="b-101">
    <div class="travels"><span class="name">KPN Travels</span></div>
    <div class="bus-name">KPN AC Sleeper</div>
    <div class="bus-type">AC Sleeper (2+1)</div>
    <div class="route-info">Chennai -&gt; Bangalore</div>
    <div class="dp-time">21:30</div>
    <div class="rating-sec"><span class="rating">4.3</span><span class="votes">120</span></div>
    <div class="review-card">
      <span class="rating">5</span>
      <span class="title">Comfortable</span>
      <p class="comment">Great ride</p>
      <span class="review-date">10 Jan 2024</span>
    </div>
    <div class="review-card">
      <span class="rating">2</span>
      <span class="review-date">11 Jan 2024</span>
    </div>
  </div>
  <div class="bus-item" data-busid="b-102">
    <div class="travels">SRS Buses</div>
    <div class="busType">Non AC Seater</div>
    <div class="route">Chennai to Bangalore</div>
  </div>
</body></html>`

func fixtureRawPage(html string) *models.RawPage {
	return &models.RawPage{
		RouteKey:    "chennai:bangalore",
		Origin:      "Chennai",
		Destination: "Bangalore",
		PageIndex:   0,
		HTML:        html,
	}
}

func TestParseExtractsListingsAndReviews(t *testing.T) {
	p := NewParser()

	result, err := p.Parse(fixtureRawPage(fixturePage))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if len(result.Listings) != 2 {
		t.Fatalf("listings: got %d, want 2", len(result.Listings))
	}

	first := result.Listings[0]
	if first.SourceBusID != "b-101" {
		t.Errorf("source id: got %q", first.SourceBusID)
	}
	if first.Operator != "KPN Travels" {
		t.Errorf("operator: got %q", first.Operator)
	}
	if first.BusType != "AC Sleeper (2+1)" {
		t.Errorf("bus type: got %q", first.BusType)
	}
	if first.Route != "Chennai -> Bangalore" {
		t.Errorf("route (entities should be decoded by goquery): got %q", first.Route)
	}
	if first.Departure != "21:30" {
		t.Errorf("departure: got %q", first.Departure)
	}
	if first.RatingCount != "120" {
		t.Errorf("rating count: got %q", first.RatingCount)
	}

	// Second card exercises the fallback selectors; optional fields stay empty.
	second := result.Listings[1]
	if second.Operator != "SRS Buses" {
		t.Errorf("fallback operator: got %q", second.Operator)
	}
	if second.Departure != "" || second.RatingCount != "" {
		t.Errorf("absent optionals should be empty, got %q / %q", second.Departure, second.RatingCount)
	}

	// The bodyless review card is skipped, not fatal.
	if len(result.Reviews) != 1 {
		t.Fatalf("reviews: got %d, want 1", len(result.Reviews))
	}
	if result.SkippedReviews != 1 {
		t.Errorf("skipped reviews: got %d, want 1", result.SkippedReviews)
	}

	review := result.Reviews[0]
	if review.SourceBusID != "b-101" {
		t.Errorf("review bus id: got %q", review.SourceBusID)
	}
	if review.Text != "Great ride" || review.Title != "Comfortable" {
		t.Errorf("review fields: got %q / %q", review.Text, review.Title)
	}
	if review.Rating != "5" || review.Date != "10 Jan 2024" {
		t.Errorf("review rating/date: got %q / %q", review.Rating, review.Date)
	}
}

func TestParseSynthesizesIDForAnonymousCard(t *testing.T) {
	p := NewParser()

	page := fixtureRawPage(`
<html><body>
  <div class="bus-item" data-busid="b-101">
    <div class="travels"><span class="name">KPN Travels</span></div>
  </div>
  <div class="bus-item">
    <div class="travels"><span class="name">SRS Buses</span></div>
    <div class="review-card"><p class="comment">Driver was rash</p></div>
  </div>
</body></html>`)

	result, err := p.Parse(page)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Listings) != 2 || len(result.Reviews) != 1 {
		t.Fatalf("got %d listings / %d reviews, want 2 / 1", len(result.Listings), len(result.Reviews))
	}

	anon := result.Listings[1]
	if anon.SourceBusID != "card-1" {
		t.Errorf("anonymous card id: got %q, want %q", anon.SourceBusID, "card-1")
	}
	// The nested review must resolve to its own card's listing.
	if result.Reviews[0].SourceBusID != anon.SourceBusID {
		t.Errorf("review bus id: got %q, want %q", result.Reviews[0].SourceBusID, anon.SourceBusID)
	}
}

func TestParseMalformedPage(t *testing.T) {
	p := NewParser()

	_, err := p.Parse(fixtureRawPage(`<html><body><p>blocked</p></body></html>`))
	if err == nil {
		t.Fatal("expected malformed page error")
	}
	perr, ok := err.(*models.ParseError)
	if !ok {
		t.Fatalf("expected *models.ParseError, got %T", err)
	}
	if perr.Kind != models.MalformedPage {
		t.Errorf("kind: got %v, want MalformedPage", perr.Kind)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	p := NewParser()
	page := fixtureRawPage(fixturePage)

	a, err := p.Parse(page)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Parse(page)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Listings) != len(b.Listings) || len(a.Reviews) != len(b.Reviews) {
		t.Error("two parses of the same page should be identical")
	}
	if a.Listings[0] != b.Listings[0] || a.Reviews[0] != b.Reviews[0] {
		t.Error("record contents should be identical across parses")
	}
}
