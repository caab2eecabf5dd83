package redbus

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"redbus-scraper/models"
)

// Parser turns one rendered page into raw listing and review records. It is
// pure: no I/O, no retained state, deterministic for a given page.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse extracts bus cards and their inline review cards. A page without a
// single listing container is a malformed page; a malformed individual
// review is skipped and counted without failing the page.
func (p *Parser) Parse(page *models.RawPage) (*models.ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, &models.ParseError{
			Kind:     models.MalformedPage,
			RouteKey: page.RouteKey,
			Page:     page.PageIndex,
			Err:      err,
		}
	}

	cards := doc.Find(busItemSelector)
	if cards.Length() == 0 {
		return nil, &models.ParseError{
			Kind:     models.MalformedPage,
			RouteKey: page.RouteKey,
			Page:     page.PageIndex,
		}
	}

	result := &models.ParseResult{}

	cards.Each(func(i int, card *goquery.Selection) {
		listing := parseBusCard(card)
		if listing.SourceBusID == "" {
			// Markup without an id still needs a stable handle so the
			// card's nested reviews resolve to this listing.
			listing.SourceBusID = fmt.Sprintf("card-%d", i)
		}
		result.Listings = append(result.Listings, listing)

		card.Find(".review-card").Each(func(_ int, node *goquery.Selection) {
			review, ok := parseReview(node, listing.SourceBusID)
			if !ok {
				result.SkippedReviews++
				return
			}
			result.Reviews = append(result.Reviews, review)
		})
	})

	return result, nil
}

func parseBusCard(card *goquery.Selection) models.ListingRecord {
	id, ok := card.Attr("data-busid")
	if !ok {
		id, _ = card.Attr("id")
	}

	return models.ListingRecord{
		SourceBusID: strings.TrimSpace(id),
		Operator:    textOf(card, ".travels .name", ".travels"),
		BusName:     textOf(card, ".bus-name", ".busType"),
		BusType:     textOf(card, ".bus-type", ".busType"),
		Route:       textOf(card, ".route-info", ".route"),
		Departure:   textOf(card, ".dp-time", ".departure-time"),
		Rating:      textOf(card, ".rating-sec .rating", ".rating"),
		RatingCount: textOf(card, ".rating-sec .votes"),
	}
}

// parseReview returns ok=false for a review with no body text: there is
// nothing to dedup or score, so the record is unusable.
func parseReview(node *goquery.Selection, sourceBusID string) (models.ReviewRecord, bool) {
	body := textOf(node, ".comment", ".desc")
	if body == "" {
		return models.ReviewRecord{}, false
	}

	return models.ReviewRecord{
		SourceBusID: sourceBusID,
		Rating:      textOf(node, ".rating", ".score"),
		Title:       textOf(node, ".title"),
		Text:        body,
		Date:        textOf(node, ".review-date", ".date"),
	}, true
}

// textOf returns the trimmed text of the first selector that matches.
func textOf(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			if text := strings.TrimSpace(found.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}
