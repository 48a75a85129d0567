// Package metrics exposes Prometheus counters for the generation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	JobsSubmitted   prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobsFailed      prometheus.Counter
	JobsRunning     prometheus.Gauge
	Attempts        *prometheus.CounterVec
	StyleRejections prometheus.Counter
	ProviderRetries prometheus.Counter
	ChunkDuration   prometheus.Histogram
}

// Attempt outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeProblem  = "problem"
)

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stylesafe_jobs_submitted_total",
			Help: "Generation jobs accepted for processing.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stylesafe_jobs_completed_total",
			Help: "Jobs that reached the completed state.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "stylesafe_jobs_failed_total",
			Help: "Jobs that reached the failed state.",
		}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stylesafe_jobs_running",
			Help: "Jobs currently processing chunks.",
		}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stylesafe_generation_attempts_total",
			Help: "Generation attempts by terminal outcome.",
		}, []string{"outcome"}),
		StyleRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "stylesafe_style_rejections_total",
			Help: "Results rejected for being too similar to a reference.",
		}),
		ProviderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "stylesafe_provider_retries_total",
			Help: "Transient provider failures that triggered a retry.",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stylesafe_chunk_duration_seconds",
			Help:    "Wall time spent processing one chunk.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// Handler serves the registry in the standard exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
