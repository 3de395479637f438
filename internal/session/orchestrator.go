// Package session runs one websocket transcription session: a receive
// loop feeding audio and control messages to the shared workers, a send
// loop delivering transcripts, and an optional moderation loop
// delivering toxicity verdicts. The receive loop is the only place a
// disconnect is detected; the send loops drain their channels after it
// ends so in-flight results still reach persistence.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-moderation-gateway/internal/events"
	"speech-moderation-gateway/internal/models"
	"speech-moderation-gateway/internal/observability/logging"
	"speech-moderation-gateway/internal/observability/metrics"
	"speech-moderation-gateway/internal/store"
	"speech-moderation-gateway/internal/supervisor"
	"speech-moderation-gateway/internal/worker"
)

// Conn is the subset of a websocket connection the orchestrator uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	Close() error
}

// WorkerManager is the supervisor surface sessions depend on.
type WorkerManager interface {
	Start(ctx context.Context, kind supervisor.Kind, modelID string) error
	ChannelsFor(kind supervisor.Kind) (supervisor.Channels, bool)
	SetModerationEnabled(enabled bool)
	ModerationEnabled() bool
	ModerationRequested() bool
}

// Persister stores transcription log updates.
type Persister interface {
	Upsert(ctx context.Context, sessionID string, u store.Update) error
}

// Config tunes the per-session loops.
type Config struct {
	DefaultModel    string
	ModerationModel string
	// OnFinalOnly restricts moderation to final transcripts.
	OnFinalOnly bool
	// PollInterval is the sleep between empty channel polls.
	PollInterval time.Duration
	// EmptyPollLimit is how many consecutive empty polls after the
	// receive loop ends before the send loop exits.
	EmptyPollLimit int
	// SendLoopGrace bounds the post-disconnect wait for the send loop.
	SendLoopGrace time.Duration
	// ModerationGrace bounds the wait for the moderation loop.
	ModerationGrace time.Duration
}

// Orchestrator builds and runs sessions over shared workers.
type Orchestrator struct {
	cfg     Config
	manager WorkerManager
	store   Persister
	events  *events.Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
	newID   func() string
}

// New creates a session orchestrator. Zero config fields fall back to
// production defaults.
func New(cfg Config, manager WorkerManager, persister Persister, publisher *events.Publisher, m *metrics.Metrics) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.EmptyPollLimit <= 0 {
		cfg.EmptyPollLimit = 200
	}
	if cfg.SendLoopGrace <= 0 {
		cfg.SendLoopGrace = 15 * time.Second
	}
	if cfg.ModerationGrace <= 0 {
		cfg.ModerationGrace = 5 * time.Second
	}
	return &Orchestrator{
		cfg:     cfg,
		manager: manager,
		store:   persister,
		events:  publisher,
		metrics: m,
		log:     logging.WithComponent("session"),
		newID:   func() string { return uuid.NewString()[:8] },
	}
}

// controlMessage is one client JSON frame.
type controlMessage struct {
	Type       string  `json:"type"`
	Model      string  `json:"model,omitempty"`
	Moderation *bool   `json:"moderation,omitempty"`
	SessionID  string  `json:"sessionId,omitempty"`
	Timestamp  float64 `json:"timestamp,omitempty"`
}

// pongMessage echoes a heartbeat ping.
type pongMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// moderationMessage is the moderation verdict sent to the client.
type moderationMessage struct {
	Type             string        `json:"type"`
	RequestID        string        `json:"request_id"`
	Label            string        `json:"label"`
	LabelID          int           `json:"label_id"`
	Confidence       float64       `json:"confidence"`
	IsFlagged        bool          `json:"is_flagged"`
	LatencyMs        float64       `json:"latency_ms"`
	DetectedKeywords []string      `json:"detected_keywords"`
	Spans            []models.Span `json:"spans"`
}

// session is the mutable per-connection state.
type session struct {
	conn Conn

	mu          sync.Mutex
	sessionID   string
	modelID     string
	log         zerolog.Logger
	transcriber supervisor.Channels

	// detector is fixed at handshake; hasDetector never changes after.
	detector    supervisor.Channels
	hasDetector bool

	writeMu      sync.Mutex
	clientClosed atomic.Bool

	receiveEnded chan struct{}
	endOnce      sync.Once
}

func (s *session) endReceive() { s.endOnce.Do(func() { close(s.receiveEnded) }) }

func (s *session) channels() supervisor.Channels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriber
}

func (s *session) setTranscriber(modelID string, ch supervisor.Channels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelID = modelID
	s.transcriber = ch
}

func (s *session) model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelID
}

func (s *session) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *session) setSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
	s.log = logging.WithSession(id)
}

func (s *session) logger() *zerolog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.log
	return &l
}

// send serializes writes from the two send loops. A failed write marks
// the client closed; subsequent results are still drained for
// persistence but no longer delivered.
func (s *session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.conn.WriteJSON(v)
	if err != nil {
		s.clientClosed.Store(true)
	}
	return err
}

// Handle runs one connection to completion.
func (o *Orchestrator) Handle(ctx context.Context, conn Conn) {
	started := time.Now()
	o.metrics.RecordSessionStart()
	defer func() { o.metrics.RecordSessionEnd(time.Since(started).Seconds()) }()
	defer conn.Close()

	st := &session{
		conn:         conn,
		modelID:      o.cfg.DefaultModel,
		log:          o.log,
		receiveEnded: make(chan struct{}),
	}

	// Handshake: the first frame is either a config override or the
	// first audio chunk.
	var firstAudio []byte
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	switch mt {
	case websocket.TextMessage:
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err == nil && msg.Type == "config" {
			if msg.Model != "" {
				st.modelID = msg.Model
			}
			if msg.Moderation != nil {
				o.manager.SetModerationEnabled(*msg.Moderation)
			}
		}
	case websocket.BinaryMessage:
		firstAudio = data
	}

	if err := o.manager.Start(ctx, supervisor.KindTranscriber, st.modelID); err != nil {
		o.log.Error().Err(err).Str("model", st.modelID).Msg("Failed to start transcriber")
		closeInternal(conn, "failed to start model")
		return
	}
	ch, ok := o.manager.ChannelsFor(supervisor.KindTranscriber)
	if !ok {
		o.log.Error().Str("model", st.modelID).Msg("Transcriber channels unavailable")
		closeInternal(conn, "failed to start model")
		return
	}
	st.transcriber = ch

	if o.manager.ModerationRequested() {
		if err := o.manager.Start(ctx, supervisor.KindDetector, o.cfg.ModerationModel); err != nil {
			o.log.Warn().Err(err).Msg("Failed to start detector, moderation disabled for session")
		} else if mc, ok := o.manager.ChannelsFor(supervisor.KindDetector); ok {
			st.detector = mc
			st.hasDetector = true
		}
	}

	if firstAudio != nil {
		o.metrics.RecordAudioReceived(len(firstAudio))
		select {
		case st.transcriber.Commands <- worker.Command{Type: worker.CmdAudio, Audio: firstAudio}:
		case <-ctx.Done():
			return
		}
	}

	sendCtx, cancelSend := context.WithCancel(ctx)
	defer cancelSend()
	modCtx, cancelMod := context.WithCancel(ctx)
	defer cancelMod()

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		o.transcriptionLoop(sendCtx, st)
	}()

	var modDone chan struct{}
	if st.hasDetector {
		modDone = make(chan struct{})
		go func() {
			defer close(modDone)
			o.moderationLoop(modCtx, st)
		}()
	}

	o.receiveLoop(ctx, st)

	// The receive loop is the disconnect detector; after it ends, wait
	// for the send loops in order, each with a bounded grace.
	select {
	case <-sendDone:
	case <-time.After(o.cfg.SendLoopGrace):
		st.logger().Warn().Dur("grace", o.cfg.SendLoopGrace).Msg("Send loop exceeded drain grace, cancelling")
		cancelSend()
		<-sendDone
	}
	if modDone != nil {
		select {
		case <-modDone:
		case <-time.After(o.cfg.ModerationGrace):
			st.logger().Warn().Dur("grace", o.cfg.ModerationGrace).Msg("Moderation loop exceeded drain grace, cancelling")
			cancelMod()
			<-modDone
		}
	}
}

func closeInternal(conn Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

// receiveLoop reads client frames until disconnect. Binary frames are
// audio; text frames are control messages.
func (o *Orchestrator) receiveLoop(ctx context.Context, st *session) {
	defer st.endReceive()
	for {
		mt, data, err := st.conn.ReadMessage()
		if err != nil {
			st.logger().Debug().Err(err).Msg("Client disconnected")
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			o.metrics.RecordAudioReceived(len(data))
			select {
			case st.channels().Commands <- worker.Command{Type: worker.CmdAudio, Audio: data}:
			case <-ctx.Done():
				return
			}
		case websocket.TextMessage:
			o.handleControl(ctx, st, data)
		}
	}
}

func (o *Orchestrator) handleControl(ctx context.Context, st *session, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		o.log.Warn().Err(err).Msg("Ignoring malformed control message")
		return
	}

	switch msg.Type {
	case "config":
		if msg.Model != "" && msg.Model != st.model() {
			o.log.Info().Str("model", msg.Model).Msg("Switching transcription model")
			if err := o.manager.Start(ctx, supervisor.KindTranscriber, msg.Model); err != nil {
				o.log.Warn().Err(err).Str("model", msg.Model).Msg("Model switch failed, keeping current model")
			} else if ch, ok := o.manager.ChannelsFor(supervisor.KindTranscriber); ok {
				st.setTranscriber(msg.Model, ch)
			}
		}
		if msg.Moderation != nil {
			o.manager.SetModerationEnabled(*msg.Moderation)
			o.log.Info().Bool("moderation", *msg.Moderation).Msg("Moderation toggled")
		}

	case "start_session":
		if msg.SessionID == "" {
			return
		}
		st.setSession(msg.SessionID)
		o.log.Info().Str("sessionId", msg.SessionID).Msg("Starting new session")

		// A previous session's results must not leak into this one.
		drained := drainResults(st.channels().Results)
		if st.hasDetector {
			drained += drainResults(st.detector.Results)
		}
		if drained > 0 {
			o.log.Info().Int("drained", drained).Msg("Discarded stale results from previous session")
		}
		select {
		case st.channels().Commands <- worker.Command{Type: worker.CmdReset}:
		case <-ctx.Done():
		}

	case "flush":
		select {
		case st.channels().Commands <- worker.Command{Type: worker.CmdFlush}:
		case <-ctx.Done():
		}

	case "ping":
		if err := st.send(pongMessage{Type: "pong", Timestamp: msg.Timestamp}); err != nil {
			st.logger().Warn().Err(err).Msg("Failed to send pong")
		}
	}
}

func drainResults(ch <-chan worker.Result) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

// transcriptionLoop delivers transcripts until the channel has stayed
// empty long enough after the receive loop ended.
func (o *Orchestrator) transcriptionLoop(ctx context.Context, st *session) {
	emptyPolls := 0
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-st.channels().Results:
			emptyPolls = 0
			o.handleTranscription(ctx, st, res)
		case <-time.After(o.cfg.PollInterval):
			select {
			case <-st.receiveEnded:
				emptyPolls++
				if emptyPolls >= o.cfg.EmptyPollLimit {
					return
				}
			default:
			}
		}
	}
}

func (o *Orchestrator) handleTranscription(ctx context.Context, st *session, res worker.Result) {
	if res.Err != "" {
		st.logger().Warn().Str("error", res.Err).Msg("Transcriber reported item failure")
		return
	}
	tr := res.Transcription
	if tr == nil {
		return
	}

	if !st.clientClosed.Load() {
		if err := st.send(tr); err != nil {
			st.logger().Warn().Err(err).Msg("Failed to send transcript, draining for persistence only")
		}
	}
	o.metrics.RecordTranscript(tr.IsFinal)

	text := strings.TrimSpace(tr.Text)
	sessionID := st.session()

	// Moderation is best-effort: a full channel drops the request
	// rather than blocking transcription delivery.
	if text != "" && st.hasDetector && o.manager.ModerationEnabled() && (!o.cfg.OnFinalOnly || tr.IsFinal) {
		req := &models.ModerationRequest{
			RequestID: o.newID(),
			Text:      text,
			SessionID: sessionID,
			IsFinal:   tr.IsFinal,
		}
		select {
		case st.detector.Commands <- worker.Command{Type: worker.CmdModerate, Moderation: req}:
			o.metrics.RecordModerationRequest()
		default:
			o.metrics.RecordModerationDropped()
			st.logger().Warn().Str("requestId", req.RequestID).Msg("Moderation channel full, dropping request")
		}
	}

	if text != "" && sessionID != "" {
		err := o.store.Upsert(ctx, sessionID, store.Update{
			ModelID:   &tr.Model,
			Content:   &text,
			Workflow:  tr.WorkflowType,
			LatencyMs: &tr.LatencyMs,
		})
		o.metrics.RecordPersist(err)
		if err != nil {
			st.logger().Error().Err(err).Msg("Failed to persist transcript")
		}
	}

	if tr.IsFinal && sessionID != "" {
		if err := o.events.PublishTranscript(ctx, sessionID, events.TranscriptEvent{
			SessionID: sessionID,
			Model:     tr.Model,
			Text:      text,
			IsFinal:   tr.IsFinal,
			LatencyMs: tr.LatencyMs,
			EmittedAt: time.Now().UTC(),
		}); err != nil {
			st.logger().Warn().Err(err).Msg("Failed to publish transcript event")
		}
	}
}

// moderationLoop delivers verdicts. It keeps running while moderation
// is toggled off so toggling back on resumes delivery, and it takes an
// extra grace pause after the receive loop ends so in-flight
// detections still land.
func (o *Orchestrator) moderationLoop(ctx context.Context, st *session) {
	for {
		if !o.manager.ModerationEnabled() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * o.cfg.PollInterval):
			}
			select {
			case <-st.receiveEnded:
				return
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case res := <-st.detector.Results:
			o.handleModeration(ctx, st, res)
			continue
		case <-time.After(o.cfg.PollInterval):
		}

		select {
		case <-st.receiveEnded:
			// One extra window for detections still in the worker.
			select {
			case <-ctx.Done():
				return
			case res := <-st.detector.Results:
				o.handleModeration(ctx, st, res)
				continue
			case <-time.After(10 * o.cfg.PollInterval):
			}
			if len(st.detector.Results) == 0 {
				return
			}
		default:
		}
	}
}

func (o *Orchestrator) handleModeration(ctx context.Context, st *session, res worker.Result) {
	if res.Err != "" {
		st.logger().Warn().Str("error", res.Err).Msg("Detector reported item failure")
		return
	}
	out := res.Moderation
	if out == nil {
		return
	}

	if !st.clientClosed.Load() {
		msg := moderationMessage{
			Type:             "moderation",
			RequestID:        out.RequestID,
			Label:            out.Label,
			LabelID:          out.LabelID,
			Confidence:       out.Confidence,
			IsFlagged:        out.IsFlagged,
			LatencyMs:        out.LatencyMs,
			DetectedKeywords: out.DetectedKeywords,
			Spans:            out.Spans,
		}
		if err := st.send(msg); err != nil {
			st.logger().Warn().Err(err).Msg("Failed to send moderation result")
		}
	}
	o.metrics.RecordModerationOutcome(out.Label, out.LatencyMs/1000)

	sessionID := out.SessionID
	if sessionID == "" {
		sessionID = st.session()
	}
	if sessionID == "" {
		return
	}

	err := o.store.Upsert(ctx, sessionID, store.Update{
		ModerationLabel:      &out.Label,
		ModerationConfidence: &out.Confidence,
		IsFlagged:            &out.IsFlagged,
		DetectedKeywords:     out.DetectedKeywords,
	})
	o.metrics.RecordPersist(err)
	if err != nil {
		o.log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to persist moderation verdict")
	}

	if err := o.events.PublishModeration(ctx, sessionID, events.ModerationEvent{
		SessionID:        sessionID,
		RequestID:        out.RequestID,
		Label:            out.Label,
		Confidence:       out.Confidence,
		IsFlagged:        out.IsFlagged,
		DetectedKeywords: out.DetectedKeywords,
		Spans:            out.Spans,
		EmittedAt:        time.Now().UTC(),
	}); err != nil {
		o.log.Warn().Err(err).Msg("Failed to publish moderation event")
	}
}
