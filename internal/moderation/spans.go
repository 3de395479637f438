package moderation

import (
	"sort"
	"strings"
	"unicode"

	"speech-moderation-gateway/internal/models"
)

// lowerRunes lowercases a rune slice in place-preserving fashion so that
// offsets into the lowered text line up with the original.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// isBoundary reports whether position i in rs is a whitespace-delimited
// word boundary (start of text, end of text, or adjacent to whitespace).
func isBoundary(rs []rune, i int) bool {
	if i <= 0 || i >= len(rs) {
		return true
	}
	return unicode.IsSpace(rs[i-1]) || unicode.IsSpace(rs[i])
}

// ScanRules runs the rule-based phrase scan over text. Phrases are
// matched case-insensitively on whitespace boundaries, longest phrase
// first; positions claimed by a match cannot be re-claimed by a later
// (shorter) match. Returned spans are sorted by start offset and keep
// the original casing of the matched text.
func ScanRules(text string, phrases []string) []models.Span {
	runes := []rune(text)
	lowered := lowerRunes(runes)

	sorted := make([]string, len(phrases))
	copy(sorted, phrases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len([]rune(sorted[i])) > len([]rune(sorted[j]))
	})

	covered := make([]bool, len(runes))
	var spans []models.Span

	for _, phrase := range sorted {
		want := []rune(strings.ToLower(phrase))
		if len(want) == 0 {
			continue
		}
	scan:
		for i := 0; i+len(want) <= len(lowered); i++ {
			if !isBoundary(lowered, i) || !isBoundary(lowered, i+len(want)) {
				continue
			}
			for j, w := range want {
				if lowered[i+j] != w {
					continue scan
				}
			}
			for j := i; j < i+len(want); j++ {
				if covered[j] {
					continue scan
				}
			}
			for j := i; j < i+len(want); j++ {
				covered[j] = true
			}
			spans = append(spans, models.Span{
				Text:  string(runes[i : i+len(want)]),
				Start: i,
				End:   i + len(want),
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// FilterModelSpans keeps only model spans that exactly match a curated
// phrase or substring-overlap one in either direction. This trims the
// model's false positives on common words.
func FilterModelSpans(spans []models.Span, phrases []string) []models.Span {
	known := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		known[strings.ToLower(p)] = struct{}{}
	}

	var filtered []models.Span
	for _, span := range spans {
		lower := strings.ToLower(span.Text)
		if _, ok := known[lower]; ok {
			filtered = append(filtered, span)
			continue
		}
		for p := range known {
			if strings.Contains(lower, p) || strings.Contains(p, lower) {
				filtered = append(filtered, span)
				break
			}
		}
	}
	return filtered
}

// MergeSpans combines model spans with rule spans. A rule span that
// overlaps no model span is kept. A rule span that overlaps one or more
// model spans replaces them only when it is strictly longer than every
// overlapped model span; otherwise the model spans win and the rule span
// is discarded. The result is sorted by start offset.
func MergeSpans(modelSpans, ruleSpans []models.Span) []models.Span {
	if len(ruleSpans) == 0 {
		return modelSpans
	}
	if len(modelSpans) == 0 {
		return ruleSpans
	}

	kept := make([]models.Span, len(modelSpans))
	copy(kept, modelSpans)

	var added []models.Span
	for _, rule := range ruleSpans {
		var overlapped []int
		for i, m := range kept {
			if rule.Overlaps(m) {
				overlapped = append(overlapped, i)
			}
		}
		if len(overlapped) == 0 {
			added = append(added, rule)
			continue
		}

		longer := true
		for _, i := range overlapped {
			if rule.Length() <= kept[i].Length() {
				longer = false
				break
			}
		}
		if !longer {
			continue
		}

		drop := make(map[int]struct{}, len(overlapped))
		for _, i := range overlapped {
			drop[i] = struct{}{}
		}
		next := kept[:0]
		for i, m := range kept {
			if _, ok := drop[i]; !ok {
				next = append(next, m)
			}
		}
		kept = next
		added = append(added, rule)
	}

	merged := append(kept, added...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return merged
}

// UniqueKeywords returns span texts deduplicated case-sensitively in
// order of first appearance.
func UniqueKeywords(spans []models.Span) []string {
	seen := make(map[string]struct{}, len(spans))
	keywords := make([]string, 0, len(spans))
	for _, s := range spans {
		if _, ok := seen[s.Text]; ok {
			continue
		}
		seen[s.Text] = struct{}{}
		keywords = append(keywords, s.Text)
	}
	return keywords
}
