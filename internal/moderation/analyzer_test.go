package moderation

import (
	"errors"
	"testing"

	"speech-moderation-gateway/internal/models"
)

type fixedClassifier struct {
	pred Prediction
	err  error
}

func (c *fixedClassifier) Classify(string) (Prediction, error) {
	return c.pred, c.err
}

func TestAnalyzer_Detect_CleanText(t *testing.T) {
	a := NewAnalyzer(NewLexiconClassifier())

	out, err := a.Detect("xin chào bạn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Label != models.LabelClean || out.IsFlagged {
		t.Errorf("expected clean outcome, got %+v", out)
	}
	if len(out.Spans) != 0 || len(out.DetectedKeywords) != 0 {
		t.Errorf("expected no spans or keywords, got %+v", out)
	}
}

func TestAnalyzer_Detect_OffensivePhrase(t *testing.T) {
	a := NewAnalyzer(NewLexiconClassifier())

	out, err := a.Detect("thằng ngu này sao mà chậm quá")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Label != models.LabelOffensive || !out.IsFlagged {
		t.Errorf("expected OFFENSIVE flagged, got %+v", out)
	}
	if len(out.Spans) != 1 || out.Spans[0].Text != "thằng ngu" {
		t.Fatalf("expected span 'thằng ngu', got %+v", out.Spans)
	}
	if out.Spans[0].Start != 0 || out.Spans[0].End != 9 {
		t.Errorf("expected offsets [0,9), got %+v", out.Spans[0])
	}
	if len(out.DetectedKeywords) != 1 || out.DetectedKeywords[0] != "thằng ngu" {
		t.Errorf("unexpected keywords: %v", out.DetectedKeywords)
	}
}

func TestAnalyzer_Detect_SevereLanguage(t *testing.T) {
	a := NewAnalyzer(NewLexiconClassifier())

	out, err := a.Detect("đồ súc sinh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Label != models.LabelHate || out.LabelID != 2 {
		t.Errorf("expected HATE, got %+v", out)
	}
}

func TestAnalyzer_Detect_ShortTextSkipped(t *testing.T) {
	a := NewAnalyzer(&fixedClassifier{err: errors.New("must not be called")})

	out, err := a.Detect("vl")
	if err != nil {
		t.Fatalf("short text should bypass the classifier: %v", err)
	}
	if out.Label != models.LabelClean {
		t.Errorf("expected clean outcome for short text, got %+v", out)
	}
}

func TestAnalyzer_Detect_ClassifierError(t *testing.T) {
	a := NewAnalyzer(&fixedClassifier{err: errors.New("model unavailable")})

	if _, err := a.Detect("some longer text"); err == nil {
		t.Fatal("expected classifier error to propagate")
	}
}

func TestLexiconClassifier_TagsPhraseTokens(t *testing.T) {
	c := NewLexiconClassifier()

	pred, err := c.Classify("thằng ngu này")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pred.Tags) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(pred.Tags))
	}
	want := []int{TagBegin, TagInside, TagOutside}
	for i, tag := range want {
		if pred.Tags[i] != tag {
			t.Errorf("token %d: got tag %d, want %d", i, pred.Tags[i], tag)
		}
	}
}
