// Package metrics exposes Prometheus instrumentation for the orchestration
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "samvaad_requests_total",
		Help: "Translation requests by terminal status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "samvaad_stage_duration_seconds",
		Help:    "Per-stage latency including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"stage"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "samvaad_stage_failures_total",
		Help: "Stage failures after retry exhaustion",
	}, []string{"stage"})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "samvaad_pipeline_duration_seconds",
		Help:    "End-to-end pipeline wall-clock time",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	OfflineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "samvaad_offline_queue_depth",
		Help: "Submissions waiting for connectivity",
	})

	OfflineReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "samvaad_offline_replays_total",
		Help: "Queued submissions replayed after reconnect",
	})

	ConnectivityOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "samvaad_connectivity_online",
		Help: "1 when the language-service provider is reachable",
	})
)
