package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus tracks a RouteTask through the orchestrator's state machine.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskInProgress
	TaskDone
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in-progress"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	}
	return "unknown"
}

// RouteTask is the unit of work: one origin/destination pair plus the page
// cursor the next fetch should use. Owned and mutated by the orchestrator.
type RouteTask struct {
	Origin      string
	Destination string
	Page        int
	Status      TaskStatus
}

// Key returns the route key used for checkpoints and worker assignment.
func (t RouteTask) Key() string {
	return strings.ToLower(strings.TrimSpace(t.Origin)) + ":" +
		strings.ToLower(strings.TrimSpace(t.Destination))
}

func (t RouteTask) String() string {
	return fmt.Sprintf("%s -> %s (page %d)", t.Origin, t.Destination, t.Page)
}

// RawPage is one fetched, fully rendered HTML document. It lives only
// between the fetcher and the parser; the audit store may snapshot it.
type RawPage struct {
	RouteKey    string
	Origin      string
	Destination string
	PageIndex   int
	HTML        string
	ByteSize    int
	FetchedAt   time.Time
}

// ListingRecord is a bus card exactly as extracted from the page, all
// fields still raw strings. Empty string means the field was absent.
type ListingRecord struct {
	SourceBusID string `csv:"source_bus_id"`
	Operator    string `csv:"operator_name"`
	BusName     string `csv:"bus_name"`
	BusType     string `csv:"bus_type"`
	Route       string `csv:"route"`
	Departure   string `csv:"departure"`
	Rating      string `csv:"rating"`
	RatingCount string `csv:"rating_count"`
}

// ReviewRecord is a single review as extracted, still raw.
type ReviewRecord struct {
	SourceBusID string `csv:"source_bus_id"`
	Rating      string `csv:"rating"`
	Title       string `csv:"review_title"`
	Text        string `csv:"review_text"`
	Date        string `csv:"review_date"`
}

// ParseResult is the parser's output for one page.
type ParseResult struct {
	Listings       []ListingRecord
	Reviews        []ReviewRecord
	SkippedReviews int
}

// BusType is the closed taxonomy bus types are mapped into.
type BusType string

const (
	BusTypeACSleeper    BusType = "ac_sleeper"
	BusTypeACSeater     BusType = "ac_seater"
	BusTypeNonACSleeper BusType = "non_ac_sleeper"
	BusTypeNonACSeater  BusType = "non_ac_seater"
	BusTypeSemiSleeper  BusType = "semi_sleeper"
	BusTypeOther        BusType = "other"
)

// QualityFlag marks a non-fatal data-validity issue on a record. Flagged
// records are kept, never dropped.
type QualityFlag string

const (
	QualityRatingInvalid   QualityFlag = "rating_invalid"
	QualityDateInvalid     QualityFlag = "date_invalid"
	QualityBusTypeUnmapped QualityFlag = "bus_type_unmapped"
)

// BusListing is the normalized, persistable listing. AvgRating and
// RatingCount are recomputed from stored reviews at load time; the values
// scraped off the page never survive past normalization.
type BusListing struct {
	BusID         string
	OperatorName  string
	BusName       string
	BusType       BusType
	Origin        string
	Destination   string
	LastScrapedAt time.Time
	Flags         []QualityFlag
}

// SentimentLabel classifies a review's overall tone.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is the scorer's verdict for one piece of text.
type Sentiment struct {
	Label SentimentLabel
	Value float64
}

// Review is the normalized, persistable review. DedupKey is the stable
// identity used for idempotent ingestion.
type Review struct {
	BusID          string
	DedupKey       string
	Rating         *float64
	Title          string
	Text           string
	Date           *time.Time
	SentimentLabel SentimentLabel
	SentimentScore float64
	IngestedAt     time.Time
	Flags          []QualityFlag
}

// Checkpoint marks the last fully persisted page for a route.
type Checkpoint struct {
	RouteKey      string
	LastPageIndex int
	UpdatedAt     time.Time
}

// LoadReport counts the outcome of one load batch.
type LoadReport struct {
	ListingsInserted  int
	ListingsUpdated   int
	ReviewsInserted   int
	DuplicatesSkipped int
	Rejected          int
}

// Merge folds another report into this one.
func (r *LoadReport) Merge(other *LoadReport) {
	if other == nil {
		return
	}
	r.ListingsInserted += other.ListingsInserted
	r.ListingsUpdated += other.ListingsUpdated
	r.ReviewsInserted += other.ReviewsInserted
	r.DuplicatesSkipped += other.DuplicatesSkipped
	r.Rejected += other.Rejected
}

// RouteError records one route's failure for the run summary.
type RouteError struct {
	RouteKey string
	Page     int
	Err      string
}

// RunSummary is produced once per orchestrator run. It is never persisted
// beyond the run's own log.
type RunSummary struct {
	PagesFetched   int
	ListingsParsed int
	ReviewsParsed  int
	ReviewsSkipped int
	QualityFlags   int
	Load           LoadReport
	RoutesDone     int
	RoutesFailed   int
	Cancelled      bool
	Errors         []RouteError
	StartedAt      time.Time
	FinishedAt     time.Time
}
