// Package metrics exposes voice pipeline metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/kitchen-buddy/pkg/voice"
)

// Metrics holds all Prometheus metrics for the voice service.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	SessionTurns   prometheus.Histogram

	// Turn metrics
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	TurnsTotal    *prometheus.CounterVec
	TurnLatency   prometheus.Histogram

	// Audio metrics
	AudioBytesTotal *prometheus.CounterVec
	SegmentsDropped *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kitchen_buddy"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open voice sessions",
		},
	)

	sessionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions opened",
		},
	)

	sessionTurns := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_turns",
			Help:      "Completed turns per closed session",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of transcribe, generate and synthesize calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	stageErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Failed stage calls",
		},
		[]string{"stage", "error_type"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns by outcome",
		},
		[]string{"outcome"},
	)

	turnLatency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from end of speech to reply audio",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 60},
		},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes received and sent",
		},
		[]string{"direction"},
	)

	segmentsDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Segments dropped before transcription",
		},
		[]string{"reason"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionTurns,
		stageDuration,
		stageErrors,
		turnsTotal,
		turnLatency,
		audioBytesTotal,
		segmentsDropped,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionTurns:    sessionTurns,
		StageDuration:   stageDuration,
		StageErrors:     stageErrors,
		TurnsTotal:      turnsTotal,
		TurnLatency:     turnLatency,
		AudioBytesTotal: audioBytesTotal,
		SegmentsDropped: segmentsDropped,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAudio records audio bytes; direction is "in" or "out".
func (m *Metrics) RecordAudio(direction string, bytes int) {
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// SessionOpened implements voice.Observer.
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionClosed implements voice.Observer.
func (m *Metrics) SessionClosed(turns int) {
	m.SessionsActive.Dec()
	m.SessionTurns.Observe(float64(turns))
}

// StageDone implements voice.Observer.
func (m *Metrics) StageDone(stage voice.Stage, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(string(stage), errorType(err)).Inc()
	}
}

// TurnDone implements voice.Observer.
func (m *Metrics) TurnDone(outcome voice.Outcome, elapsed time.Duration) {
	m.TurnsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == voice.OutcomeOK {
		m.TurnLatency.Observe(elapsed.Seconds())
	}
}

// SegmentDropped implements voice.Observer.
func (m *Metrics) SegmentDropped(reason string) {
	m.SegmentsDropped.WithLabelValues(reason).Inc()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Verify Metrics implements voice.Observer at compile time.
var _ voice.Observer = (*Metrics)(nil)
