package moderation

import (
	"testing"

	"speech-moderation-gateway/internal/models"
)

func spansOf(texts ...string) []models.Span {
	spans := make([]models.Span, len(texts))
	for i, txt := range texts {
		spans[i] = models.Span{Text: txt}
	}
	return spans
}

func TestInferLabel(t *testing.T) {
	tests := []struct {
		name       string
		spans      []models.Span
		label      string
		labelID    int
		confidence float64
	}{
		{"no spans", nil, models.LabelClean, 0, 1.0},
		{"severe indicator", spansOf("giết"), models.LabelHate, 2, 0.90},
		{"mild indicator", spansOf("ngu"), models.LabelOffensive, 1, 0.85},
		{"unmatched span", spansOf("xyz"), models.LabelOffensive, 1, 0.80},
		{"severity beats order", spansOf("ngu", "giết"), models.LabelHate, 2, 0.90},
		{"indicator inside span", spansOf("thằng ngu kia"), models.LabelOffensive, 1, 0.85},
		{"span inside indicator", spansOf("suc"), models.LabelHate, 2, 0.90},
		{"case insensitive", spansOf("GIẾT"), models.LabelHate, 2, 0.90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, labelID, confidence := InferLabel(tt.spans)
			if label != tt.label || labelID != tt.labelID || confidence != tt.confidence {
				t.Errorf("got (%s, %d, %.2f), want (%s, %d, %.2f)",
					label, labelID, confidence, tt.label, tt.labelID, tt.confidence)
			}
		})
	}
}
