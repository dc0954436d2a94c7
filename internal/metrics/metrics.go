package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caseline"

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry         *prometheus.Registry
	Operations       *prometheus.CounterVec
	SequenceRetries  *prometheus.CounterVec
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RelayDeliveries  *prometheus.CounterVec
	StatusCacheReads *prometheus.CounterVec
}

// New registers collectors on a private registry so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Case operations by name and outcome.",
		}, []string{"operation", "result"}),
		SequenceRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sequence_retries_total",
			Help:      "Reference number reservations retried after a uniqueness conflict.",
		}, []string{"kind"}),
		RequestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RelayDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Events forwarded to sinks by sink and result.",
		}, []string{"sink", "result"}),
		StatusCacheReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "status_reads_total",
			Help:      "Overall status cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Operation(op, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SequenceRetry(kind string) {
	if m == nil {
		return
	}
	m.SequenceRetries.WithLabelValues(kind).Inc()
}

func (m *Metrics) Request(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) Delivery(sink, result string) {
	if m == nil {
		return
	}
	m.RelayDeliveries.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) CacheRead(result string) {
	if m == nil {
		return
	}
	m.StatusCacheReads.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
