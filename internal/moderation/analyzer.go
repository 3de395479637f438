package moderation

import (
	"strings"
	"unicode"

	"speech-moderation-gateway/internal/models"
)

// MinTextLength is the shortest text worth analyzing; anything shorter
// is reported clean without running the pipeline.
const MinTextLength = 3

// TokenClassifier produces per-token BIO predictions for a text. The
// production implementation wraps the token-classification model; tests
// and the default build use the lexicon-driven classifier below.
type TokenClassifier interface {
	Classify(text string) (Prediction, error)
}

// Analyzer runs the full hybrid detection pipeline: model prediction,
// BIO decoding, model-span filtering, rule-based scan, span merge,
// keyword dedup, and label inference.
type Analyzer struct {
	classifier TokenClassifier
	phrases    []string
}

// NewAnalyzer builds an Analyzer around the given classifier using the
// curated phrase list.
func NewAnalyzer(classifier TokenClassifier) *Analyzer {
	return &Analyzer{classifier: classifier, phrases: FallbackBadPhrases}
}

// Detect analyzes text and returns spans, keywords, and the inferred
// label. The returned outcome has no request correlation or latency;
// the detector worker fills those in.
func (a *Analyzer) Detect(text string) (models.ModerationOutcome, error) {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < MinTextLength {
		return cleanOutcome(), nil
	}

	pred, err := a.classifier.Classify(text)
	if err != nil {
		return models.ModerationOutcome{}, err
	}

	modelSpans := FilterModelSpans(DecodeBIO(text, pred), a.phrases)
	ruleSpans := ScanRules(text, a.phrases)
	spans := MergeSpans(modelSpans, ruleSpans)

	label, labelID, confidence := InferLabel(spans)
	if spans == nil {
		spans = []models.Span{}
	}
	return models.ModerationOutcome{
		Label:            label,
		LabelID:          labelID,
		Confidence:       confidence,
		IsFlagged:        labelID > 0,
		DetectedKeywords: UniqueKeywords(spans),
		Spans:            spans,
	}, nil
}

func cleanOutcome() models.ModerationOutcome {
	return models.ModerationOutcome{
		Label:            models.LabelClean,
		LabelID:          0,
		Confidence:       confidenceClean,
		DetectedKeywords: []string{},
		Spans:            []models.Span{},
	}
}

// LexiconClassifier is a TokenClassifier backed by the curated phrase
// list instead of a neural model. It tags each whitespace token that
// falls inside a rule match as B (first token) or I (continuation),
// producing realistic BIO sequences for the decoder.
type LexiconClassifier struct {
	phrases []string
}

// NewLexiconClassifier returns a classifier over the curated phrase list.
func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{phrases: FallbackBadPhrases}
}

// Classify tokenizes text on whitespace and tags tokens covered by a
// phrase match.
func (c *LexiconClassifier) Classify(text string) (Prediction, error) {
	runes := []rune(text)
	matches := ScanRules(text, c.phrases)

	var pred Prediction
	i := 0
	for i < len(runes) {
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		if i >= len(runes) {
			break
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		off := TokenOffset{Start: start, End: i}

		tag := TagOutside
		for _, m := range matches {
			if start >= m.Start && off.End <= m.End {
				if start == m.Start {
					tag = TagBegin
				} else {
					tag = TagInside
				}
				break
			}
		}
		pred.Tags = append(pred.Tags, tag)
		pred.Offsets = append(pred.Offsets, off)
		pred.Mask = append(pred.Mask, 1)
	}
	return pred, nil
}
