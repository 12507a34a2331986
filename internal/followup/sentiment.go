// Package followup holds per-tool follow-up generators. Each turns one
// tool's result into the text of the next autonomous task, or "" when it has
// nothing specific to suggest.
package followup

import (
	"fmt"
	"strings"
)

const (
	strongConfidence = 0.8
	objectiveBelow   = 0.3
	longFormWords    = 500
)

// SentimentResult is the output of the sentiment-analysis tool.
type SentimentResult struct {
	Label            string  `json:"label"` // positive, negative, neutral
	Confidence       float64 `json:"confidence"`
	Subjectivity     float64 `json:"subjectivity"`
	WordCount        int     `json:"wordCount"`
	DetectedLanguage string  `json:"detectedLanguage"`
}

// Sentiment suggests a follow-up for a sentiment analysis.
type Sentiment struct{}

// FollowUp implements autopilot.FollowUpGenerator.
func (Sentiment) FollowUp(r SentimentResult) string {
	label := strings.ToLower(strings.TrimSpace(r.Label))

	switch {
	case label == "positive" && r.Confidence >= strongConfidence:
		return "Analyze the success factors behind the strongly positive sentiment"
	case label == "negative" && r.Confidence >= strongConfidence:
		return "Draft mitigation strategies for the issues driving the negative sentiment"
	}

	if lang := strings.ToLower(r.DetectedLanguage); lang != "" && lang != "en" && lang != "english" {
		return fmt.Sprintf("Translate the %s text to English and compare the sentiment result", r.DetectedLanguage)
	}
	if r.Subjectivity < objectiveBelow {
		return "Extract the key factual claims from this largely objective text"
	}
	if r.WordCount > longFormWords {
		return fmt.Sprintf("Split the %d-word text into sections and analyze sentiment per section", r.WordCount)
	}
	return "Identify phrases that could be reworded to improve the overall tone"
}
