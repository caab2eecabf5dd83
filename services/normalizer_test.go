package services

import (
	"testing"
	"time"

	"redbus-scraper/models"
	"redbus-scraper/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger() }

func TestParseRating(t *testing.T) {
	tests := []struct {
		raw   string
		want  float64
		valid bool
	}{
		{"4.3", 4.3, true},
		{"5", 5, true},
		{"3.5 (120 votes)", 3.5, true},
		{"0", 0, true},
		{"six", 0, false},
		{"6.0", 0, false},
		{"rated 6.5 stars", 0, false},
		{"rated 4.5 stars", 4.5, true},
		{"-1", 0, false},
		{"N/A", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseRating(tt.raw)
		if ok != tt.valid {
			t.Errorf("parseRating(%q) valid = %v; want %v", tt.raw, ok, tt.valid)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseRating(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestParseReviewDate(t *testing.T) {
	tests := []struct {
		raw   string
		want  string
		valid bool
	}{
		{"10 Jan 2024", "2024-01-10", true},
		{"2024-01-10", "2024-01-10", true},
		{"10-01-2024", "2024-01-10", true},
		{"N/A", "", false},
		{"yesterday", "", false},
	}

	for _, tt := range tests {
		got, ok := parseReviewDate(tt.raw)
		if ok != tt.valid {
			t.Errorf("parseReviewDate(%q) valid = %v; want %v", tt.raw, ok, tt.valid)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("parseReviewDate(%q) = %s; want %s", tt.raw, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestSplitRoute(t *testing.T) {
	tests := []struct {
		route       string
		origin      string
		destination string
	}{
		{"Chennai -> Bangalore", "Chennai", "Bangalore"},
		{"Chennai → Bangalore", "Chennai", "Bangalore"},
		{"Madurai to Chennai", "Madurai", "Chennai"},
		{"Hyderabad", "Hyderabad", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		origin, destination := SplitRoute(tt.route)
		if origin != tt.origin || destination != tt.destination {
			t.Errorf("SplitRoute(%q) = (%q, %q); want (%q, %q)",
				tt.route, origin, destination, tt.origin, tt.destination)
		}
	}
}

func TestMapBusType(t *testing.T) {
	tests := []struct {
		raw    string
		want   models.BusType
		mapped bool
	}{
		{"AC Sleeper", models.BusTypeACSleeper, true},
		{"Scania AC Sleeper (2+1)", models.BusTypeACSleeper, true},
		{"NON A/C Seater", models.BusTypeNonACSeater, true},
		{"Volvo Semi Sleeper", models.BusTypeSemiSleeper, true},
		{"Luxury Coach", models.BusTypeOther, false},
		{"", models.BusTypeOther, false},
	}

	for _, tt := range tests {
		got, mapped := MapBusType(tt.raw)
		if got != tt.want || mapped != tt.mapped {
			t.Errorf("MapBusType(%q) = (%s, %v); want (%s, %v)",
				tt.raw, got, mapped, tt.want, tt.mapped)
		}
	}
}

func TestBusIDDeterministic(t *testing.T) {
	a := BusID("KPN Travels", "Chennai", "Bangalore", "21:30", "KPN AC Sleeper")
	b := BusID("kpn travels", "Chennai", "Bangalore", "21:30", "KPN AC Sleeper")
	if a != b {
		t.Errorf("bus id should be case-insensitive: %s != %s", a, b)
	}

	c := BusID("KPN Travels", "Chennai", "Bangalore", "23:00", "KPN AC Sleeper")
	if a == c {
		t.Error("different departures on the same route must yield different bus ids")
	}
}

func TestDedupKeyIgnoresWhitespaceAndCasing(t *testing.T) {
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	a := DedupKey("bus-1", "Great   ride,\tvery comfortable", &date)
	b := DedupKey("bus-1", "great ride, very comfortable", &date)
	if a != b {
		t.Errorf("keys should match modulo whitespace/casing: %s != %s", a, b)
	}

	c := DedupKey("bus-2", "great ride, very comfortable", &date)
	if a == c {
		t.Error("different buses must yield different dedup keys")
	}

	d := DedupKey("bus-1", "great ride, very comfortable", nil)
	if a == d {
		t.Error("a dated and an undated review must yield different dedup keys")
	}
}

func TestNormalizeReviewKeepsFlaggedRecords(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	review, ok := n.NormalizeReview(models.ReviewRecord{
		SourceBusID: "123",
		Rating:      "six",
		Text:        "Driver was rash",
		Date:        "N/A",
	}, "bus-1")
	if !ok {
		t.Fatal("flagged review must be kept, not dropped")
	}
	if review.Rating != nil {
		t.Errorf("unparseable rating should be nil, got %v", *review.Rating)
	}
	if review.Date != nil {
		t.Errorf("unparseable date should be nil, got %v", *review.Date)
	}
	if !hasFlag(review.Flags, models.QualityRatingInvalid) {
		t.Error("missing rating_invalid flag")
	}
	if !hasFlag(review.Flags, models.QualityDateInvalid) {
		t.Error("missing date_invalid flag")
	}
}

func TestNormalizeReviewDropsEmptyText(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	if _, ok := n.NormalizeReview(models.ReviewRecord{Text: "   \t "}, "bus-1"); ok {
		t.Error("whitespace-only review text should be dropped")
	}
}

func TestNormalizeListingFallsBackToTaskRoute(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	page := &models.RawPage{Origin: "Chennai", Destination: "Bangalore"}

	listing, ok := n.NormalizeListing(models.ListingRecord{
		SourceBusID: "123",
		Operator:    "KPN Travels",
		BusName:     "KPN AC Sleeper",
		BusType:     "AC Sleeper",
	}, page)
	if !ok {
		t.Fatal("listing should be kept")
	}
	if listing.Origin != "Chennai" || listing.Destination != "Bangalore" {
		t.Errorf("route fallback: got (%q, %q)", listing.Origin, listing.Destination)
	}
	if listing.BusType != models.BusTypeACSleeper {
		t.Errorf("bus type: got %s", listing.BusType)
	}
	if len(listing.Flags) != 0 {
		t.Errorf("unexpected flags: %v", listing.Flags)
	}
}

func TestNormalizeListingDropsWithoutIdentity(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	_, ok := n.NormalizeListing(models.ListingRecord{SourceBusID: "123"}, &models.RawPage{})
	if ok {
		t.Error("listing with no operator and no bus name should be dropped")
	}
}

func hasFlag(flags []models.QualityFlag, want models.QualityFlag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
