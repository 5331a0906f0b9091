// Package metrics exposes job and model-source counters for prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "diarizer"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted         prometheus.Counter
	jobsFinished          *prometheus.CounterVec
	jobsRequeued          prometheus.Counter
	jobDuration           prometheus.Histogram
	audioProcessed        prometheus.Counter
	sourceLatency         *prometheus.HistogramVec
	sourceFailures        *prometheus.CounterVec
	enrichmentUnavailable prometheus.Counter
}

// New registers every collector plus the go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted at intake.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"status", "error_kind"}),
		jobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_requeued_total",
			Help:      "Orphaned jobs moved back to pending.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_processing_seconds",
			Help:      "Wall time from claim to completion.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		audioProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_processed_seconds_total",
			Help:      "Seconds of audio in completed jobs.",
		}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_seconds",
			Help:      "Latency of successful model source calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Failed model source calls.",
		}, []string{"source", "error_kind"}),
		enrichmentUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_unavailable_total",
			Help:      "Jobs completed without LLM enhancements because enrichment failed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsSubmitted,
		m.jobsFinished,
		m.jobsRequeued,
		m.jobDuration,
		m.audioProcessed,
		m.sourceLatency,
		m.sourceFailures,
		m.enrichmentUnavailable,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

// JobCompleted records a completed job and the audio it covered
func (m *Metrics) JobCompleted(elapsed time.Duration, audioSeconds float64) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues("completed", "").Inc()
	m.jobDuration.Observe(elapsed.Seconds())
	m.audioProcessed.Add(audioSeconds)
}

func (m *Metrics) JobFailed(errorKind string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues("failed", errorKind).Inc()
}

func (m *Metrics) JobRequeued() {
	if m == nil {
		return
	}
	m.jobsRequeued.Inc()
}

// RecordSuccess records a successful call to a segment, transcript or
// enrichment source
func (m *Metrics) RecordSuccess(source string, latency time.Duration) {
	if m == nil {
		return
	}
	m.sourceLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordFailure records a failed source call
func (m *Metrics) RecordFailure(source string, errorKind string) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(source, errorKind).Inc()
}

func (m *Metrics) EnrichmentUnavailable() {
	if m == nil {
		return
	}
	m.enrichmentUnavailable.Inc()
}
