// Package moderation implements hybrid toxic-span detection: per-token
// BIO predictions from a token-classification model are decoded into
// character spans, merged with a rule-based scan of a curated phrase
// list, and the merged spans are mapped to a coarse moderation label.
package moderation

import (
	"strings"

	"speech-moderation-gateway/internal/models"
)

// BIO tag ids used by the token classifier.
const (
	TagOutside = 0 // O
	TagBegin   = 1 // B-T, opens a toxic span
	TagInside  = 2 // I-T, extends the open toxic span
)

// TokenOffset is the half-open character range [Start, End) one token
// covers in the input text. Special and padding tokens carry (0, 0).
type TokenOffset struct {
	Start int
	End   int
}

// Prediction holds the classifier output for one text: parallel slices
// of tag ids, token offsets, and an attention mask (0 marks padding).
type Prediction struct {
	Tags    []int
	Offsets []TokenOffset
	Mask    []int
}

// DecodeBIO turns per-token BIO predictions into character spans.
//
// B opens a span, closing and emitting any currently open one first.
// I extends the open span, or is treated as B when no span is open
// (recovery from a malformed tag sequence). O closes the open span.
// Padding and special tokens are skipped without touching the open span.
func DecodeBIO(text string, p Prediction) []models.Span {
	runes := []rune(text)

	var spans []models.Span
	open := false
	var start, end int

	emit := func() {
		if !open {
			return
		}
		open = false
		if start >= len(runes) {
			return
		}
		e := end
		if e > len(runes) {
			e = len(runes)
		}
		spanText := strings.TrimSpace(string(runes[start:e]))
		if spanText != "" {
			spans = append(spans, models.Span{Text: spanText, Start: start, End: e})
		}
	}

	for i, tag := range p.Tags {
		if i < len(p.Mask) && p.Mask[i] == 0 {
			continue
		}
		if i >= len(p.Offsets) {
			break
		}
		off := p.Offsets[i]
		if off.Start == 0 && off.End == 0 {
			continue
		}

		switch tag {
		case TagBegin:
			emit()
			open = true
			start, end = off.Start, off.End
		case TagInside:
			if open {
				end = off.End
			} else {
				open = true
				start, end = off.Start, off.End
			}
		default: // O
			emit()
		}
	}
	emit()

	return spans
}
