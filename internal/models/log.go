package models

import "time"

// TranscriptionLog is one persisted transcription session, including any
// moderation verdict recorded for it.
type TranscriptionLog struct {
	ID                   int64     `json:"id"`
	SessionID            string    `json:"session_id"`
	ModelID              string    `json:"model_id"`
	Content              string    `json:"content"`
	LatencyMs            float64   `json:"latency_ms"`
	CreatedAt            time.Time `json:"created_at"`
	ModerationLabel      *string   `json:"moderation_label,omitempty"`
	ModerationConfidence *float64  `json:"moderation_confidence,omitempty"`
	IsFlagged            *bool     `json:"is_flagged,omitempty"`
	DetectedKeywords     []string  `json:"detected_keywords,omitempty"`
}

// HistoryFilter narrows a history listing. Zero values mean "no filter";
// Page is 1-indexed and Limit is capped by the store.
type HistoryFilter struct {
	Page       int
	Limit      int
	Search     string
	ModelID    string
	MinLatency *float64
	MaxLatency *float64
	StartDate  *time.Time
	EndDate    *time.Time
}
