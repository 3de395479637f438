// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_moderation_gateway"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	// Moderation metrics
	ModerationRequests prometheus.Counter
	ModerationDropped  prometheus.Counter
	ModerationOutcomes *prometheus.CounterVec
	ModerationLatency  prometheus.Histogram

	// Worker lifecycle metrics
	WorkerStarts      *prometheus.CounterVec
	WorkerStops       *prometheus.CounterVec
	WorkerEscalations *prometheus.CounterVec
	WorkerStartErrors *prometheus.CounterVec

	// Persistence metrics
	PersistTotal  prometheus.Counter
	PersistErrors prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of websocket sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected websocket sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of websocket sessions in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received",
		}),

		// Transcript metrics
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts emitted",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts emitted",
		}),

		// Moderation metrics
		ModerationRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_requests_total",
			Help:      "Total number of moderation requests forwarded to the detector",
		}),
		ModerationDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_requests_dropped_total",
			Help:      "Total number of moderation requests dropped due to a full channel",
		}),
		ModerationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_outcomes_total",
			Help:      "Total number of moderation outcomes by label",
		}, []string{"label"}),
		ModerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "moderation_latency_seconds",
			Help:      "Detector processing latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		// Worker lifecycle metrics
		WorkerStarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_starts_total",
			Help:      "Total number of worker processes started",
		}, []string{"kind", "model"}),
		WorkerStops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_stops_total",
			Help:      "Total number of worker processes stopped",
		}, []string{"kind"}),
		WorkerEscalations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_stop_escalations_total",
			Help:      "Total number of stop escalations (terminate, kill)",
		}, []string{"kind", "step"}),
		WorkerStartErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_start_errors_total",
			Help:      "Total number of failed worker starts",
		}, []string{"kind"}),

		// Persistence metrics
		PersistTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Total number of transcription log upserts",
		}),
		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Total number of failed transcription log upserts",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordAudioReceived records audio bytes and chunks received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordTranscript records a transcript emitted to a client.
func (m *Metrics) RecordTranscript(isFinal bool) {
	if isFinal {
		m.TranscriptsFinal.Inc()
	} else {
		m.TranscriptsPartial.Inc()
	}
}

// RecordModerationRequest records a moderation request forwarded to the detector.
func (m *Metrics) RecordModerationRequest() {
	m.ModerationRequests.Inc()
}

// RecordModerationDropped records a moderation request dropped on a full channel.
func (m *Metrics) RecordModerationDropped() {
	m.ModerationDropped.Inc()
}

// RecordModerationOutcome records a moderation outcome by label.
func (m *Metrics) RecordModerationOutcome(label string, latencySeconds float64) {
	m.ModerationOutcomes.WithLabelValues(label).Inc()
	m.ModerationLatency.Observe(latencySeconds)
}

// RecordWorkerStart records a worker process starting.
func (m *Metrics) RecordWorkerStart(kind, model string) {
	m.WorkerStarts.WithLabelValues(kind, model).Inc()
}

// RecordWorkerStop records a worker process stopping.
func (m *Metrics) RecordWorkerStop(kind string) {
	m.WorkerStops.WithLabelValues(kind).Inc()
}

// RecordWorkerEscalation records a stop escalation step (terminate or kill).
func (m *Metrics) RecordWorkerEscalation(kind, step string) {
	m.WorkerEscalations.WithLabelValues(kind, step).Inc()
}

// RecordWorkerStartError records a failed worker start.
func (m *Metrics) RecordWorkerStartError(kind string) {
	m.WorkerStartErrors.WithLabelValues(kind).Inc()
}

// RecordPersist records a transcription log upsert attempt.
func (m *Metrics) RecordPersist(err error) {
	m.PersistTotal.Inc()
	if err != nil {
		m.PersistErrors.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
