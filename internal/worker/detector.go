package worker

import (
	"strings"
	"time"

	"speech-moderation-gateway/internal/moderation"
)

// Detector is the moderation engine: it answers moderation requests
// with the analyzer's verdict. Only CmdModerate is meaningful; other
// commands are ignored so the detector tolerates the shared command
// vocabulary.
type Detector struct {
	analyzer *moderation.Analyzer
}

// NewDetector builds a detector engine around the given analyzer.
func NewDetector(analyzer *moderation.Analyzer) *Detector {
	return &Detector{analyzer: analyzer}
}

// Process handles one command from the input channel. Texts shorter
// than the analyzer's minimum produce no output at all.
func (d *Detector) Process(cmd Command, emit func(Result)) error {
	if cmd.Type != CmdModerate || cmd.Moderation == nil {
		return nil
	}
	req := cmd.Moderation

	text := strings.TrimSpace(req.Text)
	if len([]rune(text)) < moderation.MinTextLength {
		return nil
	}

	start := time.Now()
	outcome, err := d.analyzer.Detect(req.Text)
	if err != nil {
		return err
	}

	outcome.RequestID = req.RequestID
	outcome.SessionID = req.SessionID
	outcome.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
	emit(Result{Moderation: &outcome})
	return nil
}
