package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the assistant.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	Turns             *prometheus.CounterVec
	Evictions         *prometheus.CounterVec
	RetrievalHits     prometheus.Histogram
	CompletionLatency *prometheus.HistogramVec
}

// NewMetrics registers the instruments on a private registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live chat sessions.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by profile and outcome.",
		}, []string{"profile", "outcome"}),
		Evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_evictions_total",
			Help:      "Turns evicted from conversational memory by profile.",
		}, []string{"profile"}),
		RetrievalHits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_hits",
			Help:      "Snippets returned per retrieval query.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20},
		}),
		CompletionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion call latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"profile"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// ObserveTurn counts a finished turn. outcome is "ok" or "error".
func (m *Metrics) ObserveTurn(profile, outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(profile, outcome).Inc()
}

func (m *Metrics) ObserveEviction(profile string) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(profile).Inc()
}

func (m *Metrics) ObserveRetrieval(hits int) {
	if m == nil {
		return
	}
	m.RetrievalHits.Observe(float64(hits))
}

func (m *Metrics) ObserveCompletionLatency(profile string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionLatency.WithLabelValues(profile).Observe(float64(d.Milliseconds()))
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
