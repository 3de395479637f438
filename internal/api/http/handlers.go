// Package http serves the REST API and the transcription websocket.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"speech-moderation-gateway/internal/config"
	"speech-moderation-gateway/internal/models"
	"speech-moderation-gateway/internal/observability/logging"
	"speech-moderation-gateway/internal/session"
	"speech-moderation-gateway/internal/supervisor"
)

// Supervisor is the worker-manager surface the API exposes.
type Supervisor interface {
	Start(ctx context.Context, kind supervisor.Kind, modelID string) error
	Status() supervisor.Status
	CurrentModel(kind supervisor.Kind) (string, bool)
	LoadingModel(kind supervisor.Kind) (string, bool)
	ChannelsFor(kind supervisor.Kind) (supervisor.Channels, bool)
	SetModerationEnabled(enabled bool)
	ModerationRequested() bool
	SupportedModels(kind supervisor.Kind) []string
}

// HistoryStore lists persisted transcription logs.
type HistoryStore interface {
	List(ctx context.Context, f models.HistoryFilter) ([]models.TranscriptionLog, int, error)
}

// SessionHandler runs one upgraded websocket connection.
type SessionHandler interface {
	Handle(ctx context.Context, conn session.Conn)
}

// Handler holds the REST handlers' dependencies.
type Handler struct {
	cfg      *config.Config
	manager  Supervisor
	store    HistoryStore
	sessions SessionHandler
	log      zerolog.Logger
}

// NewHandler wires the REST handlers.
func NewHandler(cfg *config.Config, manager Supervisor, store HistoryStore, sessions SessionHandler) *Handler {
	return &Handler{
		cfg:      cfg,
		manager:  manager,
		store:    store,
		sessions: sessions,
		log:      logging.WithComponent("api"),
	}
}

// modelInfo describes one available transcription model.
type modelInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	WorkflowType      string `json:"workflow_type"`
	ExpectedLatencyMs [2]int `json:"expected_latency_ms"`
}

// listModels returns the configured transcription models.
func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	available := h.manager.SupportedModels(supervisor.KindTranscriber)
	infos := make([]modelInfo, 0, len(available))
	for _, id := range available {
		infos = append(infos, modelInfo{
			ID:                id,
			Name:              id,
			Description:       "Real-time streaming ASR optimized for Vietnamese.",
			WorkflowType:      models.WorkflowStreaming,
			ExpectedLatencyMs: [2]int{100, 500},
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// historyResponse is one page of transcription logs.
type historyResponse struct {
	Items []models.TranscriptionLog `json:"items"`
	Total int                       `json:"total"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
}

// getHistory lists persisted sessions with filtering and pagination.
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.HistoryFilter{
		Page:    intQuery(q.Get("page"), 1),
		Limit:   intQuery(q.Get("limit"), 50),
		Search:  q.Get("search"),
		ModelID: q.Get("model"),
	}
	if v := q.Get("min_latency"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid filter", "min_latency must be a number")
			return
		}
		filter.MinLatency = &f
	}
	if v := q.Get("max_latency"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid filter", "max_latency must be a number")
			return
		}
		filter.MaxLatency = &f
	}
	if v := q.Get("start_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid filter", "start_date must be RFC 3339")
			return
		}
		filter.StartDate = &ts
	}
	if v := q.Get("end_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid filter", "end_date must be RFC 3339")
			return
		}
		filter.EndDate = &ts
	}

	items, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list history")
		writeProblem(w, http.StatusInternalServerError, "History unavailable", "")
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Items: items,
		Total: total,
		Page:  page,
		Limit: filter.Limit,
	})
}

// modelStatus reports the supervisor's view of the transcriber.
type modelStatus struct {
	CurrentModel string `json:"current_model"`
	IsLoaded     bool   `json:"is_loaded"`
	Status       string `json:"status"`
}

func (h *Handler) getModelStatus(w http.ResponseWriter, r *http.Request) {
	status := h.manager.Status()
	current, _ := h.manager.CurrentModel(supervisor.KindTranscriber)
	if status == supervisor.StatusLoading {
		if loading, ok := h.manager.LoadingModel(supervisor.KindTranscriber); ok {
			current = loading
		}
	}
	writeJSON(w, http.StatusOK, modelStatus{
		CurrentModel: current,
		IsLoaded:     status == supervisor.StatusReady,
		Status:       string(status),
	})
}

// switchModelResponse is kept for clients of the deprecated endpoint.
type switchModelResponse struct {
	Status       string `json:"status"`
	CurrentModel string `json:"current_model"`
}

// switchModel is deprecated; models are selected per session via the
// websocket config message. It still validates the requested id.
func (h *Handler) switchModel(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	supported := false
	for _, id := range h.manager.SupportedModels(supervisor.KindTranscriber) {
		if id == model {
			supported = true
			break
		}
	}
	if !supported {
		writeProblem(w, http.StatusBadRequest, "Unknown model",
			"model "+strconv.Quote(model)+" is not available; select a model per session instead")
		return
	}
	writeJSON(w, http.StatusOK, switchModelResponse{Status: "success", CurrentModel: model})
}

// moderationConfigView mirrors the deployment's moderation settings.
type moderationConfigView struct {
	DefaultEnabled bool `json:"default_enabled"`
	OnFinalOnly    bool `json:"on_final_only"`
}

// moderationStatus reports the toggle state and detector liveness.
type moderationStatus struct {
	Enabled            bool                 `json:"enabled"`
	SpanDetectorActive bool                 `json:"span_detector_active"`
	Config             moderationConfigView `json:"config"`
}

func (h *Handler) getModerationStatus(w http.ResponseWriter, r *http.Request) {
	_, active := h.manager.ChannelsFor(supervisor.KindDetector)
	writeJSON(w, http.StatusOK, moderationStatus{
		Enabled:            h.manager.ModerationRequested(),
		SpanDetectorActive: active,
		Config: moderationConfigView{
			DefaultEnabled: h.cfg.Moderation.EnabledByDefault,
			OnFinalOnly:    h.cfg.Moderation.OnFinalOnly,
		},
	})
}

// moderationToggleResponse confirms a toggle request.
type moderationToggleResponse struct {
	Enabled            bool `json:"enabled"`
	SpanDetectorActive bool `json:"span_detector_active"`
}

// toggleModeration enables or disables moderation. Enabling starts the
// detector if it is not running; disabling leaves it running so a later
// enable is instant.
func (h *Handler) toggleModeration(w http.ResponseWriter, r *http.Request) {
	enabled := true
	if v := r.URL.Query().Get("enabled"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid parameter", "enabled must be a boolean")
			return
		}
		enabled = parsed
	}

	if enabled {
		if _, active := h.manager.ChannelsFor(supervisor.KindDetector); !active {
			if err := h.manager.Start(r.Context(), supervisor.KindDetector, h.cfg.Moderation.Model); err != nil {
				h.log.Error().Err(err).Msg("Failed to start detector")
				writeProblem(w, http.StatusServiceUnavailable, "Detector unavailable", err.Error())
				return
			}
		}
	}
	h.manager.SetModerationEnabled(enabled)

	_, active := h.manager.ChannelsFor(supervisor.KindDetector)
	writeJSON(w, http.StatusOK, moderationToggleResponse{
		Enabled:            h.manager.ModerationRequested(),
		SpanDetectorActive: active,
	})
}

func intQuery(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
