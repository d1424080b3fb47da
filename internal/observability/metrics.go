package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "support_desk"

// Metrics exposes Prometheus collectors for the API and the mail pipeline.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	pollPasses      *prometheus.CounterVec
	pollLastSuccess prometheus.Gauge
	envelopes       *prometheus.CounterVec
	aiFallbacks     *prometheus.CounterVec
	outbound        *prometheus.CounterVec
}

// NewMetrics initializes a private registry with all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP errors by route and error code.",
		}, []string{"path", "method", "code"}),
		pollPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_passes_total",
			Help:      "Mail poll passes by result.",
		}, []string{"result"}),
		pollLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll pass.",
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_envelopes_total",
			Help:      "Inbound emails by processing outcome.",
		}, []string{"outcome"}),
		aiFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_fallbacks_total",
			Help:      "AI calls that returned the fallback value.",
		}, []string{"operation"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_emails_total",
			Help:      "Outbound replies by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.errors,
		m.pollPasses,
		m.pollLastSuccess,
		m.envelopes,
		m.aiFallbacks,
		m.outbound,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordPass records the result of a poll pass.
func (m *Metrics) RecordPass(err error, finished time.Time) {
	if m == nil {
		return
	}
	if err != nil {
		m.pollPasses.WithLabelValues("failure").Inc()
		return
	}
	m.pollPasses.WithLabelValues("success").Inc()
	m.pollLastSuccess.Set(float64(finished.Unix()))
}

// RecordEnvelope counts one processed inbound email.
func (m *Metrics) RecordEnvelope(outcome string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(outcome).Inc()
}

// RecordAIFallback counts an AI call that degraded to its fallback.
func (m *Metrics) RecordAIFallback(operation string) {
	if m == nil {
		return
	}
	m.aiFallbacks.WithLabelValues(operation).Inc()
}

// RecordOutbound counts an outbound reply attempt.
func (m *Metrics) RecordOutbound(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.outbound.WithLabelValues("failure").Inc()
		return
	}
	m.outbound.WithLabelValues("success").Inc()
}
