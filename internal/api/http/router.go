package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Websocket endpoint; kept outside /api/v1 for frontend compatibility.
	r.Get("/ws/transcribe", h.transcribe)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", h.listModels)
		r.Get("/models/status", h.getModelStatus)
		r.Post("/models/switch", h.switchModel)
		r.Get("/history", h.getHistory)
		r.Get("/moderation/status", h.getModerationStatus)
		r.Post("/moderation/toggle", h.toggleModeration)
	})

	return r
}

// requestLogger logs one line per request. The websocket endpoint is
// skipped; its lifecycle is logged by the session orchestrator.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/transcribe" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
