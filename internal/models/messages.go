// Package models defines the data structures exchanged with clients,
// passed between the gateway and its inference workers, and persisted
// for transcription sessions.
package models

// Workflow types for transcription results.
const (
	// WorkflowStreaming means each result carries the full cumulative
	// transcript for the current utterance; consumers replace, never append.
	WorkflowStreaming = "streaming"
	// WorkflowBuffered means each result is an independent chunk that is
	// appended to previously stored content.
	WorkflowBuffered = "buffered"
)

// TranscriptionResult is one transcript emitted by the transcriber worker.
type TranscriptionResult struct {
	Text         string  `json:"text"`
	IsFinal      bool    `json:"is_final"`
	Model        string  `json:"model"`
	WorkflowType string  `json:"workflow_type"`
	LatencyMs    float64 `json:"latency_ms"`
}

// Span is a contiguous character range flagged as toxic.
// Offsets count runes in the analyzed text, half-open [Start, End).
type Span struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Length returns the number of characters the span covers.
func (s Span) Length() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one position.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// Moderation labels inferred from detected spans.
const (
	LabelClean     = "CLEAN"
	LabelOffensive = "OFFENSIVE"
	LabelHate      = "HATE"
)

// LabelID maps a moderation label to its numeric id (CLEAN=0, OFFENSIVE=1, HATE=2).
func LabelID(label string) int {
	switch label {
	case LabelOffensive:
		return 1
	case LabelHate:
		return 2
	default:
		return 0
	}
}

// ModerationRequest asks the detector worker to analyze a transcript.
type ModerationRequest struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	IsFinal   bool   `json:"is_final"`
}

// ModerationOutcome is the detector worker's verdict for one request.
type ModerationOutcome struct {
	RequestID        string   `json:"request_id"`
	SessionID        string   `json:"session_id,omitempty"`
	Label            string   `json:"label"`
	LabelID          int      `json:"label_id"`
	Confidence       float64  `json:"confidence"`
	IsFlagged        bool     `json:"is_flagged"`
	LatencyMs        float64  `json:"latency_ms"`
	DetectedKeywords []string `json:"detected_keywords"`
	Spans            []Span   `json:"spans"`
}
