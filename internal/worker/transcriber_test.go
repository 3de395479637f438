package worker

import (
	"testing"

	"speech-moderation-gateway/internal/audio"
	"speech-moderation-gateway/internal/models"
)

// fakeRecognizer returns a scripted sequence of cumulative transcripts,
// one per audio chunk.
type fakeRecognizer struct {
	texts  []string
	calls  int
	resets int
}

func (f *fakeRecognizer) AcceptWaveform([]float32) { f.calls++ }

func (f *fakeRecognizer) Text() string {
	if f.calls == 0 || len(f.texts) == 0 {
		return ""
	}
	i := f.calls - 1
	if i >= len(f.texts) {
		i = len(f.texts) - 1
	}
	return f.texts[i]
}

func (f *fakeRecognizer) Reset() {
	f.calls = 0
	f.resets++
}

func collectResults(tr *Transcriber, cmds ...Command) []Result {
	var results []Result
	for _, cmd := range cmds {
		tr.Process(cmd, func(res Result) { results = append(results, res) })
	}
	return results
}

func audioChunk() Command {
	return Command{Type: CmdAudio, Audio: make([]byte, 640)}
}

func TestTranscriber_CumulativeReplaceSemantics(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"xin", "xin chào", "xin chào bạn"}}
	tr := NewTranscriber("zipformer", rec)

	results := collectResults(tr, audioChunk(), audioChunk(), audioChunk())

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"Xin", "Xin chào", "Xin chào bạn"}
	for i, res := range results {
		got := res.Transcription
		if got == nil || got.Text != want[i] {
			t.Errorf("result %d: got %+v, want text %q", i, got, want[i])
		}
		if got != nil && got.IsFinal {
			t.Errorf("result %d unexpectedly final", i)
		}
		if got != nil && got.WorkflowType != models.WorkflowStreaming {
			t.Errorf("result %d: workflow %q", i, got.WorkflowType)
		}
	}
}

func TestTranscriber_DeduplicatesUnchangedText(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"xin chào", "xin chào", "xin chào bạn"}}
	tr := NewTranscriber("zipformer", rec)

	results := collectResults(tr, audioChunk(), audioChunk(), audioChunk())
	if len(results) != 2 {
		t.Errorf("expected 2 results after dedup, got %d", len(results))
	}
}

func TestTranscriber_FlushEmitsFinalAndResets(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"xin chào bạn"}}
	tr := NewTranscriber("zipformer", rec)

	results := collectResults(tr, audioChunk(), Command{Type: CmdFlush})

	if len(results) != 2 {
		t.Fatalf("expected partial + final, got %d results", len(results))
	}
	final := results[1].Transcription
	if final == nil || !final.IsFinal || final.Text != "Xin chào bạn" {
		t.Errorf("unexpected final result: %+v", final)
	}
	if rec.resets != 1 {
		t.Errorf("flush should reset the decoder, resets=%d", rec.resets)
	}
}

func TestTranscriber_FlushWithNoTextEmitsNothing(t *testing.T) {
	rec := &fakeRecognizer{}
	tr := NewTranscriber("zipformer", rec)

	results := collectResults(tr, Command{Type: CmdFlush})
	if len(results) != 0 {
		t.Errorf("expected no results, got %+v", results)
	}
	if rec.resets != 1 {
		t.Errorf("flush should still reset, resets=%d", rec.resets)
	}
}

func TestTranscriber_ResetClearsLastText(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"xin chào"}}
	tr := NewTranscriber("zipformer", rec)

	first := collectResults(tr, audioChunk(), Command{Type: CmdReset}, audioChunk())
	if len(first) != 2 {
		t.Fatalf("expected the same text to be re-emitted after reset, got %d results", len(first))
	}
}

func TestStubRecognizer_ProgressiveText(t *testing.T) {
	rec := NewStubRecognizer()

	halfSecond := make([]float32, audio.SampleRate/2)
	rec.AcceptWaveform(halfSecond[:10])
	first := rec.Text()
	if first == "" {
		t.Fatal("expected at least one word after first chunk")
	}

	for i := 0; i < 10; i++ {
		rec.AcceptWaveform(halfSecond)
	}
	full := rec.Text()
	if len(full) <= len(first) {
		t.Errorf("expected transcript to grow: %q then %q", first, full)
	}

	rec.Reset()
	if rec.Text() != "" {
		t.Errorf("expected empty text after reset, got %q", rec.Text())
	}
}
