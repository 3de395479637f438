// Package supervisor owns the lifecycle of the out-of-process inference
// workers. At most one transcriber and one detector are alive at a
// time; every session shares them. Starting a worker for a new model
// stops the old one first, and stopping escalates from a stop sentinel
// through SIGTERM to SIGKILL with bounded grace periods.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"speech-moderation-gateway/internal/observability/logging"
	"speech-moderation-gateway/internal/observability/metrics"
	"speech-moderation-gateway/internal/worker"
)

// Kind identifies a worker type.
type Kind string

const (
	// KindTranscriber is the speech-to-text worker.
	KindTranscriber Kind = "transcriber"
	// KindDetector is the toxicity-detection worker.
	KindDetector Kind = "detector"
)

// ChannelCapacity bounds each worker's command and result channels so a
// stalled worker cannot exhaust memory.
const ChannelCapacity = 100

// Status summarizes the supervisor for the status endpoint.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
)

// Channels is the bounded command/result pair bound to one worker.
type Channels struct {
	Commands chan worker.Command
	Results  chan worker.Result
}

// Process is the lifecycle handle of one spawned worker process.
type Process interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Terminate asks the process to exit (SIGTERM).
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
}

// Handle is one live worker: its identity, channel pair, and process.
type Handle struct {
	Kind     Kind
	ModelID  string
	Channels Channels
	proc     Process
}

// Config holds supervisor tuning.
type Config struct {
	// StopGrace is how long to wait for exit after the stop sentinel.
	StopGrace time.Duration
	// TerminateGrace is how long to wait for exit after SIGTERM.
	TerminateGrace time.Duration
}

// DefaultConfig returns the production grace periods.
func DefaultConfig() Config {
	return Config{
		StopGrace:      10 * time.Second,
		TerminateGrace: 5 * time.Second,
	}
}

// Supervisor manages the singleton-per-kind worker processes.
type Supervisor struct {
	cfg      Config
	registry *Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger

	// startMu serializes start/stop per kind; different kinds proceed
	// concurrently.
	startMu map[Kind]*sync.Mutex

	// mu guards handles and loading. Handles are swapped whole, never
	// mutated in place, so a snapshot read under mu is always coherent.
	mu      sync.Mutex
	handles map[Kind]*Handle
	loading map[Kind]string

	moderationRequested atomic.Bool
}

// New builds a supervisor over the given registry.
func New(cfg Config, registry *Registry, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		metrics:  m,
		log:      logging.WithComponent("supervisor"),
		startMu: map[Kind]*sync.Mutex{
			KindTranscriber: {},
			KindDetector:    {},
		},
		handles: make(map[Kind]*Handle),
		loading: make(map[Kind]string),
	}
}

// Start ensures a worker of the given kind runs the given model. If one
// already does, Start is a no-op. Otherwise any existing worker of that
// kind is stopped first and a fresh one is spawned on new channels.
// Concurrent Start calls for the same kind queue; different kinds
// proceed independently.
func (s *Supervisor) Start(ctx context.Context, kind Kind, modelID string) error {
	launcher, err := s.registry.Resolve(kind, modelID)
	if err != nil {
		return err
	}

	lock := s.startMu[kind]
	if lock == nil {
		return fmt.Errorf("unsupported worker kind %q", kind)
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	if h := s.handles[kind]; h != nil && h.ModelID == modelID {
		s.mu.Unlock()
		return nil
	}
	old := s.handles[kind]
	s.loading[kind] = modelID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.loading, kind)
		s.mu.Unlock()
	}()

	if old != nil {
		s.shutdown(old)
		s.mu.Lock()
		delete(s.handles, kind)
		s.mu.Unlock()
	}

	ch := Channels{
		Commands: make(chan worker.Command, ChannelCapacity),
		Results:  make(chan worker.Result, ChannelCapacity),
	}
	s.log.Info().Str("kind", string(kind)).Str("model", modelID).Msg("Starting worker")
	proc, err := launcher(ctx, kind, modelID, ch)
	if err != nil {
		s.metrics.RecordWorkerStartError(string(kind))
		return fmt.Errorf("start %s worker for %q: %w", kind, modelID, err)
	}

	s.mu.Lock()
	s.handles[kind] = &Handle{Kind: kind, ModelID: modelID, Channels: ch, proc: proc}
	s.mu.Unlock()

	s.metrics.RecordWorkerStart(string(kind), modelID)
	s.log.Info().Str("kind", string(kind)).Str("model", modelID).Msg("Worker started")
	return nil
}

// Stop shuts down the worker of the given kind. No-op if none is alive.
func (s *Supervisor) Stop(kind Kind) {
	lock := s.startMu[kind]
	if lock == nil {
		return
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	h := s.handles[kind]
	delete(s.handles, kind)
	s.mu.Unlock()

	if h == nil {
		return
	}
	s.shutdown(h)
}

// StopAll stops the transcriber, then the detector. Used at shutdown.
func (s *Supervisor) StopAll() {
	s.Stop(KindTranscriber)
	s.Stop(KindDetector)
}

// shutdown walks the stop escalation ladder: stop sentinel, SIGTERM,
// SIGKILL. Each step waits a bounded grace period and is logged; the
// walk never returns an error.
func (s *Supervisor) shutdown(h *Handle) {
	kind := string(h.Kind)
	log := s.log.With().Str("kind", kind).Str("model", h.ModelID).Logger()
	log.Info().Msg("Stopping worker")

	select {
	case h.Channels.Commands <- worker.Command{Type: worker.CmdStop}:
	default:
		log.Warn().Msg("Command channel full, stop sentinel not delivered")
	}

	select {
	case <-h.proc.Done():
		s.metrics.RecordWorkerStop(kind)
		log.Info().Msg("Worker exited")
		return
	case <-time.After(s.cfg.StopGrace):
	}

	log.Warn().Dur("grace", s.cfg.StopGrace).Msg("Worker ignored stop sentinel, terminating")
	s.metrics.RecordWorkerEscalation(kind, "terminate")
	if err := h.proc.Terminate(); err != nil {
		log.Warn().Err(err).Msg("Terminate failed")
	}

	select {
	case <-h.proc.Done():
		s.metrics.RecordWorkerStop(kind)
		log.Info().Msg("Worker exited after terminate")
		return
	case <-time.After(s.cfg.TerminateGrace):
	}

	log.Warn().Dur("grace", s.cfg.TerminateGrace).Msg("Worker ignored terminate, killing")
	s.metrics.RecordWorkerEscalation(kind, "kill")
	if err := h.proc.Kill(); err != nil {
		log.Warn().Err(err).Msg("Kill failed")
	}
	s.metrics.RecordWorkerStop(kind)
}

// ChannelsFor returns the live channel pair for a kind. ok is false
// when no worker of that kind is active; callers must treat that as
// "start the worker", not as an error for the client.
func (s *Supervisor) ChannelsFor(kind Kind) (Channels, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[kind]
	if h == nil {
		return Channels{}, false
	}
	return h.Channels, true
}

// CurrentModel returns the model id of the live worker of a kind.
func (s *Supervisor) CurrentModel(kind Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[kind]
	if h == nil {
		return "", false
	}
	return h.ModelID, true
}

// LoadingModel returns the model id currently being loaded for a kind.
func (s *Supervisor) LoadingModel(kind Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.loading[kind]
	return id, ok
}

// Status reports loading if any load is in flight, ready if a
// transcriber is alive, idle otherwise.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loading) > 0 {
		return StatusLoading
	}
	if s.handles[KindTranscriber] != nil {
		return StatusReady
	}
	return StatusIdle
}

// SetModerationEnabled toggles the process-wide moderation flag. The
// detector process itself is untouched.
func (s *Supervisor) SetModerationEnabled(enabled bool) {
	s.moderationRequested.Store(enabled)
}

// ModerationRequested reports the raw flag, regardless of whether a
// detector is running. UIs reflect this value.
func (s *Supervisor) ModerationRequested() bool {
	return s.moderationRequested.Load()
}

// ModerationEnabled reports the effective state: the flag is set and a
// detector worker is alive.
func (s *Supervisor) ModerationEnabled() bool {
	if !s.moderationRequested.Load() {
		return false
	}
	_, ok := s.ChannelsFor(KindDetector)
	return ok
}

// SupportedModels lists the registered model ids for a kind.
func (s *Supervisor) SupportedModels(kind Kind) []string {
	return s.registry.SupportedModels(kind)
}
