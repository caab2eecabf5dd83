package services

import (
	"testing"

	"redbus-scraper/models"
)

func TestLabelForThresholds(t *testing.T) {
	tests := []struct {
		value float64
		want  models.SentimentLabel
	}{
		{0.9, models.SentimentPositive},
		{PositiveThreshold, models.SentimentPositive},
		{0.04, models.SentimentNeutral},
		{0, models.SentimentNeutral},
		{-0.04, models.SentimentNeutral},
		{NegativeThreshold, models.SentimentNegative},
		{-0.9, models.SentimentNegative},
	}

	for _, tt := range tests {
		if got := LabelFor(tt.value); got != tt.want {
			t.Errorf("LabelFor(%.2f) = %s; want %s", tt.value, got, tt.want)
		}
	}
}

func TestVaderScorerEmptyTextIsNeutral(t *testing.T) {
	s := NewVaderScorer()

	for _, text := range []string{"", "   ", "\t\n"} {
		got := s.Score(text)
		if got.Label != models.SentimentNeutral || got.Value != 0 {
			t.Errorf("Score(%q) = {%s, %.2f}; want neutral 0", text, got.Label, got.Value)
		}
	}
}

func TestVaderScorerPolarity(t *testing.T) {
	s := NewVaderScorer()

	positive := s.Score("Great ride, very comfortable and the staff was excellent")
	if positive.Label != models.SentimentPositive {
		t.Errorf("expected positive, got %s (%.3f)", positive.Label, positive.Value)
	}
	if positive.Value < -1 || positive.Value > 1 {
		t.Errorf("score out of bounds: %.3f", positive.Value)
	}

	negative := s.Score("Terrible experience, the bus was late and the seats were awful")
	if negative.Label != models.SentimentNegative {
		t.Errorf("expected negative, got %s (%.3f)", negative.Label, negative.Value)
	}
}
