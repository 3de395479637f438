package worker

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// scriptedEngine records commands and can fail or panic on demand.
type scriptedEngine struct {
	commands []Command
	fail     error
	panics   bool
}

func (e *scriptedEngine) Process(cmd Command, emit func(Result)) error {
	e.commands = append(e.commands, cmd)
	if e.panics {
		panic("engine exploded")
	}
	return e.fail
}

func commandStream(t *testing.T, cmds ...Command) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	for _, cmd := range cmds {
		if err := WriteCommand(&buf, cmd); err != nil {
			t.Fatalf("encode command: %v", err)
		}
	}
	return &buf
}

func readAllResults(t *testing.T, out *bytes.Buffer) []Result {
	t.Helper()
	r := bufio.NewReader(out)
	var results []Result
	for {
		res, err := ReadResult(r)
		if err != nil {
			return results
		}
		results = append(results, res)
	}
}

func TestRunner_StopsOnSentinel(t *testing.T) {
	engine := &scriptedEngine{}
	in := commandStream(t,
		Command{Type: CmdAudio, Audio: []byte{1, 2}},
		Command{Type: CmdStop},
		Command{Type: CmdAudio, Audio: []byte{3, 4}},
	)
	var out bytes.Buffer

	if err := NewRunner(engine, in, &out, zerolog.Nop()).Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(engine.commands) != 1 {
		t.Errorf("expected 1 command processed before stop, got %d", len(engine.commands))
	}
}

func TestRunner_StopsOnEOF(t *testing.T) {
	engine := &scriptedEngine{}
	in := commandStream(t, Command{Type: CmdReset})
	var out bytes.Buffer

	if err := NewRunner(engine, in, &out, zerolog.Nop()).Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(engine.commands) != 1 {
		t.Errorf("expected 1 command, got %d", len(engine.commands))
	}
}

func TestRunner_ItemErrorBecomesErrorRecord(t *testing.T) {
	engine := &scriptedEngine{fail: errors.New("bad audio")}
	in := commandStream(t,
		Command{Type: CmdAudio, Audio: []byte{1}},
		Command{Type: CmdAudio, Audio: []byte{2}},
	)
	var out bytes.Buffer

	if err := NewRunner(engine, in, &out, zerolog.Nop()).Run(); err != nil {
		t.Fatalf("run should survive item errors: %v", err)
	}

	results := readAllResults(t, &out)
	if len(results) != 2 {
		t.Fatalf("expected 2 error records, got %d", len(results))
	}
	for _, res := range results {
		if res.Err != "bad audio" {
			t.Errorf("unexpected record: %+v", res)
		}
	}
	if len(engine.commands) != 2 {
		t.Errorf("loop should continue past errors, processed %d", len(engine.commands))
	}
}

func TestRunner_PanicBecomesErrorRecord(t *testing.T) {
	engine := &scriptedEngine{panics: true}
	in := commandStream(t, Command{Type: CmdFlush})
	var out bytes.Buffer

	if err := NewRunner(engine, in, &out, zerolog.Nop()).Run(); err != nil {
		t.Fatalf("run should survive a panic: %v", err)
	}

	results := readAllResults(t, &out)
	if len(results) != 1 || results[0].Err == "" {
		t.Fatalf("expected one error record, got %+v", results)
	}
}
