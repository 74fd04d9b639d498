// Package metrics provides Prometheus metrics export for the webhook
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports pipeline metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	webhookEvents  *prometheus.CounterVec
	intents        *prometheus.CounterVec
	intentLatency  *prometheus.HistogramVec
	llmFallbacks   *prometheus.CounterVec
	taskResults    *prometheus.CounterVec
	contextDegrade prometheus.Counter
}

// NewExporter registers the pipeline metrics on a fresh registry when none
// is given.
func NewExporter(registry *prometheus.Registry) *Exporter {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursesense",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of webhook events received",
		},
		[]string{"event_type", "status"},
	)

	e.intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursesense",
			Subsystem: "nlu",
			Name:      "intents_total",
			Help:      "Intent classification outcomes by decision source",
		},
		[]string{"intent", "source"},
	)

	e.intentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursesense",
			Subsystem: "nlu",
			Name:      "classification_latency_seconds",
			Help:      "Intent classification latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	e.llmFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursesense",
			Subsystem: "nlu",
			Name:      "llm_fallback_total",
			Help:      "LLM fallback attempts by outcome",
		},
		[]string{"outcome"},
	)

	e.taskResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursesense",
			Subsystem: "task",
			Name:      "results_total",
			Help:      "Task execution outcomes by result code",
		},
		[]string{"code"},
	)

	e.contextDegrade = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursesense",
			Subsystem: "context",
			Name:      "degraded_total",
			Help:      "Operations served without the conversation context store",
		},
	)

	registry.MustRegister(
		e.webhookEvents,
		e.intents,
		e.intentLatency,
		e.llmFallbacks,
		e.taskResults,
		e.contextDegrade,
	)
	return e
}

// RecordWebhookEvent records one delivered webhook event.
func (e *Exporter) RecordWebhookEvent(eventType string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.webhookEvents.WithLabelValues(eventType, status).Inc()
}

// RecordIntent records one classification decision.
func (e *Exporter) RecordIntent(intent, source string, latency time.Duration) {
	e.intents.WithLabelValues(intent, source).Inc()
	e.intentLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordLLMFallback records an LLM fallback attempt.
func (e *Exporter) RecordLLMFallback(outcome string) {
	e.llmFallbacks.WithLabelValues(outcome).Inc()
}

// RecordTaskResult records one executed task outcome.
func (e *Exporter) RecordTaskResult(code string) {
	e.taskResults.WithLabelValues(code).Inc()
}

// RecordContextDegraded records an operation that ran without context.
func (e *Exporter) RecordContextDegraded() {
	e.contextDegrade.Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
