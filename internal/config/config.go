package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration, loaded from environment
// variables with sensible defaults for local development.
type Config struct {
	Service       ServiceConfig
	Models        ModelsConfig
	Moderation    ModerationConfig
	Database      DatabaseConfig
	Session       SessionConfig
	Supervisor    SupervisorConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service and its listen address.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// ModelsConfig describes the transcription models this deployment offers.
type ModelsConfig struct {
	Available    []string
	Default      string
	WorkerBinary string
	Preload      bool
}

// ModerationConfig describes the toxicity detector.
type ModerationConfig struct {
	Model            string
	EnabledByDefault bool
	OnFinalOnly      bool
}

// DatabaseConfig locates the transcription log store.
type DatabaseConfig struct {
	Path string
}

// SessionConfig tunes the per-connection loops.
type SessionConfig struct {
	PollInterval    time.Duration
	EmptyPollLimit  int
	SendLoopGrace   time.Duration
	ModerationGrace time.Duration
}

// SupervisorConfig tunes worker shutdown escalation.
type SupervisorConfig struct {
	StopGrace      time.Duration
	TerminateGrace time.Duration
}

// KafkaConfig configures event publishing.
type KafkaConfig struct {
	Brokers          []string
	TopicTranscripts string
	TopicModeration  string
	Principal        string
	Enabled          bool
}

// ObservabilityConfig configures logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Load reads configuration from the environment.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-moderation")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8000"),
		},
		Models: ModelsConfig{
			Available:    envOrDefaultList("MODELS_AVAILABLE", []string{"pho-whisper-small", "pho-whisper-medium"}),
			Default:      envOrDefault("MODEL_DEFAULT", "pho-whisper-small"),
			WorkerBinary: envOrDefault("WORKER_BINARY", "./bin/worker"),
			Preload:      envOrDefaultBool("MODEL_PRELOAD", true),
		},
		Moderation: ModerationConfig{
			Model:            envOrDefault("MODERATION_MODEL", "phobert-toxic-spans"),
			EnabledByDefault: envOrDefaultBool("MODERATION_ENABLED", true),
			OnFinalOnly:      envOrDefaultBool("MODERATION_ON_FINAL_ONLY", true),
		},
		Database: DatabaseConfig{
			Path: envOrDefault("DB_PATH", "./data/transcriptions.db"),
		},
		Session: SessionConfig{
			PollInterval:    envOrDefaultDuration("SESSION_POLL_INTERVAL", 50*time.Millisecond),
			EmptyPollLimit:  envOrDefaultInt("SESSION_EMPTY_POLL_LIMIT", 200),
			SendLoopGrace:   envOrDefaultDuration("SESSION_SEND_GRACE", 15*time.Second),
			ModerationGrace: envOrDefaultDuration("SESSION_MODERATION_GRACE", 5*time.Second),
		},
		Supervisor: SupervisorConfig{
			StopGrace:      envOrDefaultDuration("WORKER_STOP_GRACE", 10*time.Second),
			TerminateGrace: envOrDefaultDuration("WORKER_TERMINATE_GRACE", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "speech.transcripts"),
			TopicModeration:  envOrDefault("KAFKA_TOPIC_MODERATION", "speech.moderation"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return parsed
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return parsed
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
