package services

import (
	"strings"

	"github.com/jonreiter/govader"

	"redbus-scraper/models"
)

// Sentiment thresholds: the VADER convention. Values between the two are
// neutral.
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// Scorer maps review text to a sentiment label and a score in [-1, 1].
// The pipeline depends only on this interface; any backend can be swapped
// in without touching the rest of the pipeline.
type Scorer interface {
	Score(text string) models.Sentiment
}

// LabelFor maps a compound score onto the label taxonomy.
func LabelFor(value float64) models.SentimentLabel {
	switch {
	case value >= PositiveThreshold:
		return models.SentimentPositive
	case value <= NegativeThreshold:
		return models.SentimentNegative
	}
	return models.SentimentNeutral
}

// The lexicon load is not free, so all scorers share one analyzer. It is
// safe for concurrent reads.
var vaderAnalyzer = govader.NewSentimentIntensityAnalyzer()

// VaderScorer scores text with the VADER lexicon.
type VaderScorer struct{}

// NewVaderScorer builds the default lexicon-backed scorer.
func NewVaderScorer() *VaderScorer {
	return &VaderScorer{}
}

// Score returns the sentiment for text. Empty or whitespace-only text is
// neutral with value 0 by convention, never an error.
func (s *VaderScorer) Score(text string) models.Sentiment {
	if strings.TrimSpace(text) == "" {
		return models.Sentiment{Label: models.SentimentNeutral, Value: 0}
	}
	compound := vaderAnalyzer.PolarityScores(text).Compound
	return models.Sentiment{Label: LabelFor(compound), Value: compound}
}
