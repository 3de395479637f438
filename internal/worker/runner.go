package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Engine processes one command at a time inside a worker process. Emit
// pushes a result onto the worker's output channel; an Engine may emit
// zero or more results per command.
type Engine interface {
	Process(cmd Command, emit func(Result)) error
}

// Runner is the worker-side command loop. It reads commands until the
// Stop sentinel or input EOF, dispatches them to the engine, and
// converts per-item failures into error records so the loop never dies
// from a single bad item.
type Runner struct {
	engine Engine
	in     *bufio.Reader
	outMu  sync.Mutex
	out    *bufio.Writer
	log    zerolog.Logger
}

// NewRunner builds a runner over the worker's stdio streams.
func NewRunner(engine Engine, in io.Reader, out io.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		engine: engine,
		in:     bufio.NewReader(in),
		out:    bufio.NewWriter(out),
		log:    log,
	}
}

// Run executes the command loop until Stop, EOF, or an unrecoverable
// protocol error.
func (r *Runner) Run() error {
	r.log.Info().Msg("worker started")
	defer r.log.Info().Msg("worker stopped")

	for {
		cmd, err := ReadCommand(r.in)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		if cmd.Type == CmdStop {
			r.log.Info().Msg("received stop signal")
			return nil
		}

		if err := r.process(cmd); err != nil {
			r.log.Error().Err(err).Msg("error processing item")
			r.emit(Result{Err: err.Error()})
		}
	}
}

// process runs one command, converting an engine panic into an error.
func (r *Runner) process(cmd Command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing item: %v", rec)
		}
	}()
	return r.engine.Process(cmd, r.emit)
}

func (r *Runner) emit(res Result) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if err := WriteResult(r.out, res); err != nil {
		r.log.Error().Err(err).Msg("write result")
		return
	}
	if err := r.out.Flush(); err != nil {
		r.log.Error().Err(err).Msg("flush result")
	}
}
