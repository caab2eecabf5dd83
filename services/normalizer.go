package services

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"redbus-scraper/models"
	"redbus-scraper/utils"
)

// busIDNamespace seeds the deterministic bus_id derivation. Fixed forever:
// changing it would re-identify every bus in the store.
var busIDNamespace = uuid.MustParse("9a1d5b6e-3c42-4f8a-9b7d-2e5f0a1c8d43")

var (
	// ratingRegexp captures a numeric rating in the 0.0–5.0 range. The
	// left guard keeps it from latching onto the fraction of an
	// out-of-range value like "6.5".
	ratingRegexp = regexp.MustCompile(`(?:^|[^\d.])([0-5](?:\.\d{1,2})?)\b`)
	// routeDelimRegexp splits "Origin -> Destination" style route strings
	routeDelimRegexp = regexp.MustCompile(`\s*(?:->|→|\bto\b)\s*`)
)

// reviewDateFormats are tried in order; the first match wins.
var reviewDateFormats = []string{
	"2 Jan 2006",
	"02 Jan 2006",
	"2006-01-02",
	"02-01-2006",
}

// busTypeTaxonomy maps cleaned source strings to the closed taxonomy.
// Unmapped values land in Other via a substring fallback, never an error.
var busTypeTaxonomy = map[string]models.BusType{
	"ac sleeper":         models.BusTypeACSleeper,
	"a/c sleeper":        models.BusTypeACSleeper,
	"volvo ac sleeper":   models.BusTypeACSleeper,
	"ac seater":          models.BusTypeACSeater,
	"a/c seater":         models.BusTypeACSeater,
	"volvo ac seater":    models.BusTypeACSeater,
	"non ac sleeper":     models.BusTypeNonACSleeper,
	"non-ac sleeper":     models.BusTypeNonACSleeper,
	"non ac seater":      models.BusTypeNonACSeater,
	"non-ac seater":      models.BusTypeNonACSeater,
	"semi sleeper":       models.BusTypeSemiSleeper,
	"semi-sleeper":       models.BusTypeSemiSleeper,
	"ac semi sleeper":    models.BusTypeSemiSleeper,
	"volvo semi sleeper": models.BusTypeSemiSleeper,
}

// Normalizer turns raw parsed records into clean, persistable ones.
// Transformations are deterministic; invalid values become nil plus a
// quality flag rather than dropping the record.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeListing cleans one listing record. ok is false only when no
// identity can be derived (no operator and no bus name).
func (n *Normalizer) NormalizeListing(rec models.ListingRecord, page *models.RawPage) (*models.BusListing, bool) {
	operator := cleanText(rec.Operator)
	busName := cleanText(rec.BusName)
	if operator == "" && busName == "" {
		n.logger.Warn("[normalizer] Dropping listing with no identity (source id %q)", rec.SourceBusID)
		return nil, false
	}

	origin, destination := SplitRoute(rec.Route)
	if origin == "" {
		origin = cleanText(page.Origin)
		destination = cleanText(page.Destination)
	}

	listing := &models.BusListing{
		BusID:         BusID(operator, origin, destination, cleanText(rec.Departure), busName),
		OperatorName:  operator,
		BusName:       busName,
		Origin:        origin,
		Destination:   destination,
		LastScrapedAt: time.Now(),
	}

	busType, mapped := MapBusType(rec.BusType)
	listing.BusType = busType
	if !mapped {
		listing.Flags = append(listing.Flags, models.QualityBusTypeUnmapped)
	}

	return listing, true
}

// NormalizeReview cleans one review record for the given bus. ok is false
// when the body text is empty after cleanup.
func (n *Normalizer) NormalizeReview(rec models.ReviewRecord, busID string) (*models.Review, bool) {
	// Bodies keep their casing; only whitespace and entities are cleaned.
	text := cleanText(rec.Text)
	if text == "" {
		return nil, false
	}

	review := &models.Review{
		BusID:      busID,
		Title:      cleanText(rec.Title),
		Text:       text,
		IngestedAt: time.Now(),
	}

	if raw := strings.TrimSpace(rec.Rating); raw != "" {
		if rating, ok := parseRating(raw); ok {
			review.Rating = &rating
		} else {
			review.Flags = append(review.Flags, models.QualityRatingInvalid)
		}
	}

	if raw := strings.TrimSpace(rec.Date); raw != "" {
		if date, ok := parseReviewDate(raw); ok {
			review.Date = &date
		} else {
			review.Flags = append(review.Flags, models.QualityDateInvalid)
		}
	}

	review.DedupKey = DedupKey(busID, text, review.Date)
	return review, true
}

// BusID derives the stable bus identity from operator, route and departure.
// A listing without a departure time falls back to the bus name so distinct
// physical buses on one route stay distinguishable.
func BusID(operator, origin, destination, departure, busName string) string {
	discriminator := departure
	if discriminator == "" {
		discriminator = busName
	}
	seed := strings.ToLower(strings.Join(
		[]string{operator, origin, destination, discriminator}, "|"))
	return uuid.NewSHA1(busIDNamespace, []byte(seed)).String()
}

// DedupKey computes the content identity of a review: same bus, same text
// modulo whitespace/casing, same date. Used for idempotent ingestion.
func DedupKey(busID, text string, date *time.Time) string {
	dateStr := ""
	if date != nil {
		dateStr = date.Format("2006-01-02")
	}
	canonical := busID + "|" + strings.ToLower(cleanText(text)) + "|" + dateStr
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// SplitRoute splits a combined route string on the "->" convention (also
// accepting "→" and " to "). Without a delimiter the whole string becomes
// the origin and the destination stays empty.
func SplitRoute(route string) (origin, destination string) {
	route = cleanText(route)
	if route == "" {
		return "", ""
	}
	parts := routeDelimRegexp.Split(route, 2)
	if len(parts) == 2 && strings.TrimSpace(parts[0]) != "" {
		return cleanText(parts[0]), cleanText(parts[1])
	}
	return route, ""
}

// MapBusType maps a free-text bus type onto the closed taxonomy. mapped is
// false when the value fell through to the Other bucket.
func MapBusType(raw string) (models.BusType, bool) {
	key := strings.ToLower(cleanText(raw))
	if key == "" {
		return models.BusTypeOther, false
	}
	if t, ok := busTypeTaxonomy[key]; ok {
		return t, true
	}

	// Substring fallback for vendor-decorated strings like
	// "Scania AC Sleeper (2+1)".
	sleeper := strings.Contains(key, "sleeper")
	seater := strings.Contains(key, "seater")
	nonAC := strings.Contains(key, "non ac") || strings.Contains(key, "non-ac") || strings.Contains(key, "non a/c")
	ac := !nonAC && (strings.Contains(key, "ac") || strings.Contains(key, "a/c"))
	switch {
	case strings.Contains(key, "semi") && sleeper:
		return models.BusTypeSemiSleeper, true
	case nonAC && sleeper:
		return models.BusTypeNonACSleeper, true
	case nonAC && seater:
		return models.BusTypeNonACSeater, true
	case ac && sleeper:
		return models.BusTypeACSleeper, true
	case ac && seater:
		return models.BusTypeACSeater, true
	}
	return models.BusTypeOther, false
}

// parseRating coerces a rating string to a bounded 0–5 float. A bare number
// is bound-checked as-is; decorated strings like "3.5 (120 votes)" fall back
// to regexp extraction.
func parseRating(raw string) (float64, bool) {
	if val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		if val < 0 || val > 5 {
			return 0, false
		}
		return val, true
	}

	match := ratingRegexp.FindStringSubmatch(raw)
	if len(match) < 2 {
		return 0, false
	}
	val, err := strconv.ParseFloat(match[1], 64)
	if err != nil || val < 0 || val > 5 {
		return 0, false
	}
	return val, true
}

// parseReviewDate normalizes a date string to a single calendar format.
func parseReviewDate(raw string) (time.Time, bool) {
	for _, format := range reviewDateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cleanText decodes HTML entities, trims and collapses whitespace.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
