// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-moderation-gateway/internal/models"
	"speech-moderation-gateway/internal/observability/metrics"
)

// Publisher publishes final transcripts and moderation verdicts to
// separate Kafka topics.
type Publisher struct {
	writerTranscripts *kafka.Writer
	writerModeration  *kafka.Writer
	principal         string
	topicTranscripts  string
	topicModeration   string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTranscripts string
	TopicModeration  string
	Principal        string
	Enabled          bool
}

// TranscriptEvent is the payload for the transcripts topic.
type TranscriptEvent struct {
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"is_final"`
	LatencyMs float64   `json:"latency_ms"`
	EmittedAt time.Time `json:"emitted_at"`
}

// ModerationEvent is the payload for the moderation topic.
type ModerationEvent struct {
	SessionID        string        `json:"session_id"`
	RequestID        string        `json:"request_id"`
	Label            string        `json:"label"`
	Confidence       float64       `json:"confidence"`
	IsFlagged        bool          `json:"is_flagged"`
	DetectedKeywords []string      `json:"detected_keywords"`
	Spans            []models.Span `json:"spans"`
	EmittedAt        time.Time     `json:"emitted_at"`
}

// New creates a new Kafka event publisher with separate topics for
// transcripts and moderation verdicts.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicTranscripts: cfg.TopicTranscripts,
			topicModeration:  cfg.TopicModeration,
			enabled:          false,
			metrics:          m,
		}
	}

	// Create a custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	// Writer for final transcripts
	writerTranscripts := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicTranscripts,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	// Writer for moderation verdicts
	writerModeration := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicModeration,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("topicModeration", cfg.TopicModeration).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTranscripts: writerTranscripts,
		writerModeration:  writerModeration,
		principal:         cfg.Principal,
		topicTranscripts:  cfg.TopicTranscripts,
		topicModeration:   cfg.TopicModeration,
		enabled:           true,
		metrics:           m,
	}
}

// PublishTranscript publishes a transcript event keyed by session id.
func (p *Publisher) PublishTranscript(ctx context.Context, sessionID string, event TranscriptEvent) error {
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, "transcript", sessionID, event)
}

// PublishModeration publishes a moderation verdict keyed by session id.
func (p *Publisher) PublishModeration(ctx context.Context, sessionID string, event ModerationEvent) error {
	return p.publish(ctx, p.writerModeration, p.topicModeration, "moderation", sessionID, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	// Log the event
	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	// Publish to Kafka
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTranscripts != nil {
		if e := p.writerTranscripts.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcripts writer")
			err = e
		}
	}
	if p.writerModeration != nil {
		if e := p.writerModeration.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing moderation writer")
			err = e
		}
	}
	return err
}
