package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "LOG_LEVEL",
		"MODELS_AVAILABLE", "MODEL_DEFAULT", "MODEL_PRELOAD",
		"MODERATION_MODEL", "MODERATION_ENABLED", "MODERATION_ON_FINAL_ONLY",
		"SESSION_POLL_INTERVAL", "SESSION_EMPTY_POLL_LIMIT",
		"SESSION_SEND_GRACE", "SESSION_MODERATION_GRACE",
		"WORKER_STOP_GRACE", "WORKER_TERMINATE_GRACE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-speech-moderation" {
		t.Errorf("expected default principal 'svc-speech-moderation', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8000" {
		t.Errorf("expected default port '8000', got %s", cfg.Service.HTTPPort)
	}

	// Model defaults
	if cfg.Models.Default != "pho-whisper-small" {
		t.Errorf("expected default model 'pho-whisper-small', got %s", cfg.Models.Default)
	}
	if !cfg.Models.Preload {
		t.Error("expected preload enabled by default")
	}

	// Moderation defaults
	if !cfg.Moderation.EnabledByDefault {
		t.Error("expected moderation enabled by default")
	}
	if !cfg.Moderation.OnFinalOnly {
		t.Error("expected moderation restricted to final results by default")
	}

	// Session defaults
	if cfg.Session.PollInterval != 50*time.Millisecond {
		t.Errorf("expected default poll interval 50ms, got %v", cfg.Session.PollInterval)
	}
	if cfg.Session.EmptyPollLimit != 200 {
		t.Errorf("expected default empty poll limit 200, got %d", cfg.Session.EmptyPollLimit)
	}
	if cfg.Session.SendLoopGrace != 15*time.Second {
		t.Errorf("expected default send grace 15s, got %v", cfg.Session.SendLoopGrace)
	}
	if cfg.Session.ModerationGrace != 5*time.Second {
		t.Errorf("expected default moderation grace 5s, got %v", cfg.Session.ModerationGrace)
	}

	// Supervisor defaults
	if cfg.Supervisor.StopGrace != 10*time.Second {
		t.Errorf("expected default stop grace 10s, got %v", cfg.Supervisor.StopGrace)
	}
	if cfg.Supervisor.TerminateGrace != 5*time.Second {
		t.Errorf("expected default terminate grace 5s, got %v", cfg.Supervisor.TerminateGrace)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9999")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("MODELS_AVAILABLE", "pho-whisper-large, wav2vec2-vi")
	os.Setenv("MODEL_DEFAULT", "pho-whisper-large")
	os.Setenv("MODERATION_ENABLED", "false")
	os.Setenv("SESSION_POLL_INTERVAL", "25ms")
	os.Setenv("SESSION_EMPTY_POLL_LIMIT", "400")
	os.Setenv("WORKER_STOP_GRACE", "2s")

	defer func() {
		os.Unsetenv("SERVICE_PRINCIPAL")
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("MODELS_AVAILABLE")
		os.Unsetenv("MODEL_DEFAULT")
		os.Unsetenv("MODERATION_ENABLED")
		os.Unsetenv("SESSION_POLL_INTERVAL")
		os.Unsetenv("SESSION_EMPTY_POLL_LIMIT")
		os.Unsetenv("WORKER_STOP_GRACE")
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	want := []string{"pho-whisper-large", "wav2vec2-vi"}
	if !reflect.DeepEqual(cfg.Models.Available, want) {
		t.Errorf("expected models %v, got %v", want, cfg.Models.Available)
	}
	if cfg.Models.Default != "pho-whisper-large" {
		t.Errorf("expected default model 'pho-whisper-large', got %s", cfg.Models.Default)
	}
	if cfg.Moderation.EnabledByDefault {
		t.Error("expected moderation disabled")
	}
	if cfg.Session.PollInterval != 25*time.Millisecond {
		t.Errorf("expected poll interval 25ms, got %v", cfg.Session.PollInterval)
	}
	if cfg.Session.EmptyPollLimit != 400 {
		t.Errorf("expected empty poll limit 400, got %d", cfg.Session.EmptyPollLimit)
	}
	if cfg.Supervisor.StopGrace != 2*time.Second {
		t.Errorf("expected stop grace 2s, got %v", cfg.Supervisor.StopGrace)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("SESSION_POLL_INTERVAL", "not-a-duration")
	os.Setenv("SESSION_EMPTY_POLL_LIMIT", "invalid")
	os.Setenv("MODEL_PRELOAD", "invalid")
	os.Setenv("WORKER_STOP_GRACE", "invalid")

	defer func() {
		os.Unsetenv("SESSION_POLL_INTERVAL")
		os.Unsetenv("SESSION_EMPTY_POLL_LIMIT")
		os.Unsetenv("MODEL_PRELOAD")
		os.Unsetenv("WORKER_STOP_GRACE")
	}()

	cfg := Load()

	if cfg.Session.PollInterval != 50*time.Millisecond {
		t.Errorf("expected default poll interval on invalid input, got %v", cfg.Session.PollInterval)
	}
	if cfg.Session.EmptyPollLimit != 200 {
		t.Errorf("expected default empty poll limit on invalid input, got %d", cfg.Session.EmptyPollLimit)
	}
	if !cfg.Models.Preload {
		t.Error("expected default preload on invalid input")
	}
	if cfg.Supervisor.StopGrace != 10*time.Second {
		t.Errorf("expected default stop grace on invalid input, got %v", cfg.Supervisor.StopGrace)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
