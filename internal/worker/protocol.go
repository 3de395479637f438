// Package worker implements the inference worker runtime: the framed
// stdio protocol between the gateway and a worker process, the worker's
// command loop, and the transcriber and detector engines.
//
// A worker is an isolated OS process. It pulls typed commands from its
// input channel (the gateway writes frames to its stdin) and pushes
// typed results to its output channel (frames on stdout) until told to
// stop. Logs go to stderr; stdout carries only protocol frames.
package worker

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"speech-moderation-gateway/internal/models"
)

// CommandType tags one item on a worker's input channel.
type CommandType byte

const (
	// CmdAudio carries one chunk of raw PCM audio for the transcriber.
	CmdAudio CommandType = 'A'
	// CmdReset clears decoding state and the last emitted text.
	CmdReset CommandType = 'R'
	// CmdFlush forces emission of the current partial result as final.
	CmdFlush CommandType = 'F'
	// CmdStop is the shutdown sentinel; the worker loop exits on it.
	CmdStop CommandType = 'S'
	// CmdModerate carries a moderation request for the detector.
	CmdModerate CommandType = 'M'
)

// Result frame type tags.
const (
	resTranscription byte = 'T'
	resModeration    byte = 'O'
	resError         byte = 'E'
)

// Command is one item on a worker's input channel.
type Command struct {
	Type       CommandType
	Audio      []byte
	Moderation *models.ModerationRequest
}

// Result is one item on a worker's output channel. Exactly one field is
// set; Err carries item-level failures so a single bad item never kills
// the worker loop.
type Result struct {
	Transcription *models.TranscriptionResult
	Moderation    *models.ModerationOutcome
	Err           string
}

// errorRecord is the wire form of an item-processing failure.
type errorRecord struct {
	Error string `json:"error"`
	Model string `json:"model,omitempty"`
}

// maxFrameSize bounds a single frame payload. A PCM chunk at 16 kHz is
// a few kilobytes; anything near this limit indicates a corrupt stream.
const maxFrameSize = 16 << 20

func writeFrame(w io.Writer, kind byte, payload []byte) error {
	var header [5]byte
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(r *bufio.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := binary.BigEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return header[0], payload, nil
}

// WriteCommand encodes one command frame. Audio payloads are written
// raw; moderation requests are JSON.
func WriteCommand(w io.Writer, cmd Command) error {
	switch cmd.Type {
	case CmdAudio:
		return writeFrame(w, byte(CmdAudio), cmd.Audio)
	case CmdModerate:
		payload, err := json.Marshal(cmd.Moderation)
		if err != nil {
			return err
		}
		return writeFrame(w, byte(CmdModerate), payload)
	case CmdReset, CmdFlush, CmdStop:
		return writeFrame(w, byte(cmd.Type), nil)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

// ReadCommand decodes one command frame.
func ReadCommand(r *bufio.Reader) (Command, error) {
	kind, payload, err := readFrame(r)
	if err != nil {
		return Command{}, err
	}
	switch CommandType(kind) {
	case CmdAudio:
		return Command{Type: CmdAudio, Audio: payload}, nil
	case CmdModerate:
		var req models.ModerationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Command{}, fmt.Errorf("decode moderation request: %w", err)
		}
		return Command{Type: CmdModerate, Moderation: &req}, nil
	case CmdReset, CmdFlush, CmdStop:
		return Command{Type: CommandType(kind)}, nil
	default:
		return Command{}, fmt.Errorf("unknown command frame %q", kind)
	}
}

// WriteResult encodes one result frame.
func WriteResult(w io.Writer, res Result) error {
	switch {
	case res.Transcription != nil:
		payload, err := json.Marshal(res.Transcription)
		if err != nil {
			return err
		}
		return writeFrame(w, resTranscription, payload)
	case res.Moderation != nil:
		payload, err := json.Marshal(res.Moderation)
		if err != nil {
			return err
		}
		return writeFrame(w, resModeration, payload)
	default:
		payload, err := json.Marshal(errorRecord{Error: res.Err})
		if err != nil {
			return err
		}
		return writeFrame(w, resError, payload)
	}
}

// ReadResult decodes one result frame.
func ReadResult(r *bufio.Reader) (Result, error) {
	kind, payload, err := readFrame(r)
	if err != nil {
		return Result{}, err
	}
	switch kind {
	case resTranscription:
		var tr models.TranscriptionResult
		if err := json.Unmarshal(payload, &tr); err != nil {
			return Result{}, fmt.Errorf("decode transcription result: %w", err)
		}
		return Result{Transcription: &tr}, nil
	case resModeration:
		var mo models.ModerationOutcome
		if err := json.Unmarshal(payload, &mo); err != nil {
			return Result{}, fmt.Errorf("decode moderation outcome: %w", err)
		}
		return Result{Moderation: &mo}, nil
	case resError:
		var rec errorRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return Result{}, fmt.Errorf("decode error record: %w", err)
		}
		return Result{Err: rec.Error}, nil
	default:
		return Result{}, fmt.Errorf("unknown result frame %q", kind)
	}
}
