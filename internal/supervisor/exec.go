package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"speech-moderation-gateway/internal/observability/logging"
	"speech-moderation-gateway/internal/worker"
)

// ExecLauncher spawns workers as child processes of a single worker
// binary. Commands are framed onto the child's stdin and results framed
// back on its stdout; the child's stderr is passed through so its logs
// land with the gateway's.
type ExecLauncher struct {
	// Binary is the path of the worker executable.
	Binary string
	// Args produces the argument list for one spawn. Defaults to
	// ["-kind", kind, "-model", modelID].
	Args func(kind Kind, modelID string) []string
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context, kind Kind, modelID string, ch Channels) (Process, error) {
	args := l.Args
	if args == nil {
		args = func(kind Kind, modelID string) []string {
			return []string{"-kind", string(kind), "-model", modelID}
		}
	}

	cmd := exec.CommandContext(ctx, l.Binary, args(kind, modelID)...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", l.Binary, err)
	}

	done := make(chan struct{})
	drained := make(chan struct{})
	aborted := make(chan struct{})
	go func() {
		// Wait must not run until the stdout pump has read to EOF:
		// it closes the parent side of the pipe, and result frames
		// still buffered there would be lost.
		<-drained
		_ = cmd.Wait()
		close(done)
	}()

	log := logging.WithWorker(string(kind), modelID)
	go pumpCommands(stdin, ch.Commands, done, log)
	go func() {
		defer close(drained)
		pumpResults(stdout, ch.Results, aborted, log)
	}()

	return &execProcess{cmd: cmd, done: done, aborted: aborted}, nil
}

// pumpCommands forwards channel commands to the child's stdin until the
// stop sentinel is sent or the child exits.
func pumpCommands(stdin io.WriteCloser, commands <-chan worker.Command, done <-chan struct{}, log zerolog.Logger) {
	defer stdin.Close()
	w := bufio.NewWriter(stdin)
	for {
		select {
		case cmd := <-commands:
			if err := worker.WriteCommand(w, cmd); err != nil {
				log.Warn().Err(err).Msg("Write to worker failed")
				return
			}
			if err := w.Flush(); err != nil {
				log.Warn().Err(err).Msg("Flush to worker failed")
				return
			}
			if cmd.Type == worker.CmdStop {
				return
			}
		case <-done:
			return
		}
	}
}

// pumpResults forwards the child's stdout frames onto the result
// channel until EOF, so frames buffered in the pipe at exit still reach
// consumers. The send blocks when the channel is full, which
// backpressures the child through the pipe; aborted unblocks it when
// the worker is force-killed and nobody is draining.
func pumpResults(stdout io.Reader, results chan<- worker.Result, aborted <-chan struct{}, log zerolog.Logger) {
	r := bufio.NewReader(stdout)
	for {
		res, err := worker.ReadResult(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warn().Err(err).Msg("Read from worker failed")
			}
			return
		}
		select {
		case results <- res:
		case <-aborted:
			return
		}
	}
}

// execProcess adapts exec.Cmd to the Process interface.
type execProcess struct {
	cmd       *exec.Cmd
	done      chan struct{}
	aborted   chan struct{}
	abortOnce sync.Once
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill is the last escalation step; buffered results are abandoned so
// the stdout pump cannot wedge on a full channel nobody drains.
func (p *execProcess) Kill() error {
	p.abortOnce.Do(func() { close(p.aborted) })
	return p.cmd.Process.Kill()
}
