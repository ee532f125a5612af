// Package metrics provides Prometheus metrics export for the assistant.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Utterance outcome labels.
const (
	OutcomeConversational = "conversational"
	OutcomeActioned       = "actioned"
	OutcomeFallback       = "fallback"
)

// Collector exports pipeline metrics in Prometheus format. A nil Collector is
// safe to call; every method is a no-op then, so tests and minimal setups can
// skip metrics entirely.
type Collector struct {
	registry *prometheus.Registry

	utterances *prometheus.CounterVec
	operations *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector on the given registry, or on a fresh one
// when registry is nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{registry: registry}

	c.utterances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hauswart",
			Subsystem: "pipeline",
			Name:      "utterances_total",
			Help:      "Total number of processed utterances",
		},
		[]string{"outcome"},
	)

	c.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hauswart",
			Subsystem: "pipeline",
			Name:      "operations_total",
			Help:      "Total number of executed sub-operations",
		},
		[]string{"task_type", "status"},
	)

	c.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hauswart",
			Subsystem: "pipeline",
			Name:      "llm_latency_seconds",
			Help:      "LLM call latency per agent in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	registry.MustRegister(c.utterances, c.operations, c.llmLatency)
	return c
}

// RecordUtterance counts one processed utterance by outcome.
func (c *Collector) RecordUtterance(outcome string) {
	if c == nil {
		return
	}
	c.utterances.WithLabelValues(outcome).Inc()
}

// RecordOperation counts one executed sub-operation.
func (c *Collector) RecordOperation(taskType string, success bool) {
	if c == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	c.operations.WithLabelValues(taskType, status).Inc()
}

// ObserveLLMLatency records one LLM round trip for the named agent.
func (c *Collector) ObserveLLMLatency(agent string, duration time.Duration) {
	if c == nil {
		return
	}
	c.llmLatency.WithLabelValues(agent).Observe(duration.Seconds())
}

// Handler returns the Prometheus exposition handler for this registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
