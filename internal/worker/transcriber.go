package worker

import (
	"strings"
	"time"
	"unicode"

	"speech-moderation-gateway/internal/audio"
	"speech-moderation-gateway/internal/models"
)

// Recognizer is the decoder behind the transcriber engine. each call to
// Text returns the full cumulative transcript for the current utterance.
// The production build binds the streaming ASR model here; the stub
// below simulates it.
type Recognizer interface {
	// AcceptWaveform feeds normalized samples into the decoder.
	AcceptWaveform(samples []float32)
	// Text returns the cumulative transcript decoded so far.
	Text() string
	// Reset discards all decoder state.
	Reset()
}

// Transcriber is the streaming transcription engine. Results carry the
// full cumulative transcript (replace semantics) and are deduplicated:
// a result is only emitted when the text actually changed.
type Transcriber struct {
	modelID    string
	recognizer Recognizer
	lastText   string
}

// NewTranscriber builds a transcriber engine for the given model.
func NewTranscriber(modelID string, rec Recognizer) *Transcriber {
	return &Transcriber{modelID: modelID, recognizer: rec}
}

// Process handles one command from the input channel.
func (t *Transcriber) Process(cmd Command, emit func(Result)) error {
	switch cmd.Type {
	case CmdAudio:
		t.acceptAudio(cmd.Audio, emit)
	case CmdReset:
		t.recognizer.Reset()
		t.lastText = ""
	case CmdFlush:
		t.flush(emit)
	}
	return nil
}

func (t *Transcriber) acceptAudio(pcm []byte, emit func(Result)) {
	start := time.Now()

	t.recognizer.AcceptWaveform(audio.BytesToFloat32(pcm))
	text := sentenceCase(t.recognizer.Text())

	latency := float64(time.Since(start).Microseconds()) / 1000.0

	if text == "" || text == t.lastText {
		return
	}
	t.lastText = text
	emit(Result{Transcription: &models.TranscriptionResult{
		Text:         text,
		IsFinal:      false,
		Model:        t.modelID,
		WorkflowType: models.WorkflowStreaming,
		LatencyMs:    latency,
	}})
}

// flush emits the current transcript marked final, then resets the
// decoder so the next utterance starts clean.
func (t *Transcriber) flush(emit func(Result)) {
	text := sentenceCase(t.recognizer.Text())
	if text != "" {
		emit(Result{Transcription: &models.TranscriptionResult{
			Text:         text,
			IsFinal:      true,
			Model:        t.modelID,
			WorkflowType: models.WorkflowStreaming,
			LatencyMs:    0,
		}})
	}
	t.recognizer.Reset()
	t.lastText = ""
}

// sentenceCase lowercases the text and capitalizes its first letter.
func sentenceCase(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// StubRecognizer simulates a streaming decoder for development and
// tests: every fixed amount of audio reveals one more word of a canned
// utterance, cycling through the list.
type StubRecognizer struct {
	utterances [][]string
	utterance  int
	samples    int
	words      int
}

// DefaultUtterances are the canned transcripts the stub cycles through.
var DefaultUtterances = [][]string{
	{"xin", "chào", "bạn"},
	{"hôm", "nay", "trời", "đẹp", "quá"},
	{"tôi", "muốn", "đặt", "một", "ly", "cà", "phê"},
	{"cảm", "ơn", "bạn", "rất", "nhiều"},
}

// samplesPerWord is how much audio reveals one more word (~0.5 s at 16 kHz).
const samplesPerWord = audio.SampleRate / 2

// NewStubRecognizer returns a stub decoder starting at the first
// canned utterance.
func NewStubRecognizer() *StubRecognizer {
	return &StubRecognizer{utterances: DefaultUtterances}
}

func (s *StubRecognizer) AcceptWaveform(samples []float32) {
	s.samples += len(samples)
	words := s.samples/samplesPerWord + 1
	if max := len(s.utterances[s.utterance]); words > max {
		words = max
	}
	s.words = words
}

func (s *StubRecognizer) Text() string {
	return strings.Join(s.utterances[s.utterance][:s.words], " ")
}

func (s *StubRecognizer) Reset() {
	s.samples = 0
	s.words = 0
	s.utterance = (s.utterance + 1) % len(s.utterances)
}
