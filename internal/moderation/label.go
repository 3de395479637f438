package moderation

import (
	"strings"

	"speech-moderation-gateway/internal/models"
)

// Confidence levels reported by label inference.
const (
	confidenceClean     = 1.0
	confidenceHate      = 0.90
	confidenceOffensive = 0.85
	confidenceDefault   = 0.80
)

// InferLabel maps merged spans to a moderation label. Severe indicators
// are checked before mild ones, so a single HATE match outranks any
// number of OFFENSIVE matches. Matching is case-insensitive and
// substring-in-either-direction, which tolerates ASR text without
// diacritics. Spans that match neither list still yield OFFENSIVE at
// reduced confidence; no spans at all is CLEAN.
func InferLabel(spans []models.Span) (label string, labelID int, confidence float64) {
	if len(spans) == 0 {
		return models.LabelClean, 0, confidenceClean
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = strings.ToLower(s.Text)
	}

	if matchesAny(texts, SevereHateIndicators) {
		return models.LabelHate, 2, confidenceHate
	}
	if matchesAny(texts, MildOffensiveIndicators) {
		return models.LabelOffensive, 1, confidenceOffensive
	}
	return models.LabelOffensive, 1, confidenceDefault
}

func matchesAny(spanTexts, indicators []string) bool {
	for _, indicator := range indicators {
		ind := strings.ToLower(indicator)
		for _, text := range spanTexts {
			if strings.Contains(text, ind) || strings.Contains(ind, text) {
				return true
			}
		}
	}
	return false
}
