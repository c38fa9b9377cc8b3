// Package metrics exposes worker counters in Prometheus format. The worker
// has no listening port, so the registry is written to a node-exporter
// textfile after each request.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeMalformed   = "malformed"
	OutcomeMissingFile = "missing_file"
	OutcomeEngineError = "engine_error"
	OutcomeFallback    = "fallback_error"
	OutcomePanic       = "panic"
)

// Stages timed by StageDuration.
const (
	StagePreprocess = "preprocess"
	StageTranscribe = "transcribe"
	StageTotal      = "total"
)

// Metrics contains all Prometheus metrics for the worker
type Metrics struct {
	Requests            *prometheus.CounterVec
	PreprocessFallbacks prometheus.Counter
	PreprocessFailures  prometheus.Counter
	AutoGainApplied     prometheus.Counter
	VADFallbacks        prometheus.Counter
	StageDuration       *prometheus.HistogramVec
	ModelLoadDuration   prometheus.Gauge

	registry *prometheus.Registry
	textfile string
}

// NewMetrics creates the metrics on a private registry. textfile may be
// empty, which disables WriteTextfile.
func NewMetrics(textfile string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kototype_requests_total",
			Help: "Total number of transcription requests by outcome",
		}, []string{"outcome"}),
		PreprocessFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "kototype_preprocess_fallbacks_total",
			Help: "Total number of times a weaker filter chain was tried",
		}),
		PreprocessFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kototype_preprocess_failures_total",
			Help: "Total number of requests transcribed from the original audio because every filter chain failed",
		}),
		AutoGainApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "kototype_auto_gain_applied_total",
			Help: "Total number of requests boosted by automatic gain",
		}),
		VADFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "kototype_vad_fallbacks_total",
			Help: "Total number of transcriptions retried with VAD disabled",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kototype_stage_duration_seconds",
			Help:    "Duration of request processing stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"stage"}),
		ModelLoadDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kototype_model_load_duration_seconds",
			Help: "Time the engine took to load the model at startup",
		}),
		registry: reg,
		textfile: textfile,
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordOutcome counts a finished request.
func (m *Metrics) RecordOutcome(outcome string) {
	m.Requests.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry to the configured textfile.
func (m *Metrics) WriteTextfile() error {
	if m.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
