// Package app wires the gateway's components together and owns the
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	apihttp "speech-moderation-gateway/internal/api/http"
	"speech-moderation-gateway/internal/config"
	"speech-moderation-gateway/internal/events"
	"speech-moderation-gateway/internal/observability"
	"speech-moderation-gateway/internal/observability/logging"
	"speech-moderation-gateway/internal/observability/metrics"
	"speech-moderation-gateway/internal/session"
	"speech-moderation-gateway/internal/store"
	"speech-moderation-gateway/internal/supervisor"
)

// Application holds process-wide state for the gateway.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	store      *store.Store
	supervisor *supervisor.Supervisor
	publisher  *events.Publisher
	httpServer *http.Server
	obsServer  *observability.Server
}

// New constructs the application: logging, persistence, the worker
// supervisor, event publishing, and the HTTP surfaces.
func New(cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg: cfg,
		Logger: logging.Logger().With().
			Str("service", cfg.Service.Principal).
			Str("component", "application").
			Logger(),
	}

	st, err := store.New(store.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	registry := supervisor.NewRegistry()
	registry.Allow(supervisor.KindTranscriber, cfg.Models.Available...)
	registry.Allow(supervisor.KindDetector, cfg.Moderation.Model)
	launcher := &supervisor.ExecLauncher{Binary: cfg.Models.WorkerBinary}
	registry.Register(supervisor.KindTranscriber, launcher.Launch)
	registry.Register(supervisor.KindDetector, launcher.Launch)

	a.supervisor = supervisor.New(supervisor.Config{
		StopGrace:      cfg.Supervisor.StopGrace,
		TerminateGrace: cfg.Supervisor.TerminateGrace,
	}, registry, metrics.DefaultMetrics)

	a.publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		TopicModeration:  cfg.Kafka.TopicModeration,
		Principal:        cfg.Kafka.Principal,
	})

	orchestrator := session.New(session.Config{
		DefaultModel:    cfg.Models.Default,
		ModerationModel: cfg.Moderation.Model,
		OnFinalOnly:     cfg.Moderation.OnFinalOnly,
		PollInterval:    cfg.Session.PollInterval,
		EmptyPollLimit:  cfg.Session.EmptyPollLimit,
		SendLoopGrace:   cfg.Session.SendLoopGrace,
		ModerationGrace: cfg.Session.ModerationGrace,
	}, a.supervisor, a.store, a.publisher, metrics.DefaultMetrics)

	router := apihttp.NewRouter(apihttp.NewHandler(cfg, a.supervisor, a.store, orchestrator))
	a.httpServer = &http.Server{
		Addr:        ":" + cfg.Service.HTTPPort,
		Handler:     router,
		ReadTimeout: 0, // websocket sessions hold the connection open
		IdleTimeout: 120 * time.Second,
	}

	a.obsServer = observability.NewServer(":"+cfg.Observability.MetricsPort, func() bool {
		return a.supervisor.Status() == supervisor.StatusReady
	})

	a.Logger.Info().Msg("Speech moderation gateway application created")
	return a, nil
}

// Start brings up the servers and, when configured, preloads the
// default transcription model and the detector.
func (a *Application) Start(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()

	a.obsServer.Start()

	if a.Cfg.Models.Preload {
		if err := a.supervisor.Start(ctx, supervisor.KindTranscriber, a.Cfg.Models.Default); err != nil {
			return fmt.Errorf("preload transcriber %s: %w", a.Cfg.Models.Default, err)
		}
	}
	if a.Cfg.Moderation.EnabledByDefault {
		if err := a.supervisor.Start(ctx, supervisor.KindDetector, a.Cfg.Moderation.Model); err != nil {
			// Sessions still transcribe without the detector.
			a.Logger.Warn().Err(err).
				Str("model", a.Cfg.Moderation.Model).
				Msg("Detector preload failed, moderation unavailable")
		} else {
			a.supervisor.SetModerationEnabled(true)
		}
	}

	go func() {
		a.Logger.Info().Str("addr", a.httpServer.Addr).Msg("Speech moderation gateway listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Speech moderation gateway started")
	return nil
}

// Shutdown stops accepting traffic, then tears down workers and
// closes the store and publisher.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Msg("Speech moderation gateway shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	a.supervisor.StopAll()

	if err := a.publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Kafka publisher close failed")
	}
	if err := a.store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Store close failed")
	}
	if err := a.obsServer.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Observability shutdown incomplete")
	}
}
