// Package metrics holds the server's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "axmcp"

// Metrics is a private registry plus the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	throttled     prometheus.Counter
	retries       *prometheus.CounterVec
	bridgeLatency prometheus.Histogram
	bridgeTimeout prometheus.Counter
	bridgePanics  prometheus.Counter
	queueDepth    prometheus.Gauge
	cacheSize     prometheus.Gauge
	evictions     prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by method and result category.",
		}, []string{"method", "status"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from receipt to response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Automatic retries of transient failures, by method.",
		}, []string{"method"}),
		bridgeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "call_duration_seconds",
			Help:      "Time native calls spent on the worker.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}),
		bridgeTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "timeouts_total",
			Help:      "Bridged calls whose caller gave up waiting.",
		}),
		bridgePanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "panics_total",
			Help:      "Panics recovered on the worker.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "queue_depth",
			Help:      "Calls waiting for the worker.",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "entries",
			Help:      "Live NodeID entries.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "evictions_total",
			Help:      "NodeIDs evicted from the identity cache.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.requestTime, m.throttled, m.retries,
		m.bridgeLatency, m.bridgeTimeout, m.bridgePanics, m.queueDepth,
		m.cacheSize, m.evictions,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, status).Inc()
	m.requestTime.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Throttled() {
	if m != nil {
		m.throttled.Inc()
	}
}

func (m *Metrics) Retried(method string) {
	if m != nil {
		m.retries.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) ObserveBridgeCall(d time.Duration) {
	if m != nil {
		m.bridgeLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) BridgeTimeout() {
	if m != nil {
		m.bridgeTimeout.Inc()
	}
}

func (m *Metrics) BridgePanic() {
	if m != nil {
		m.bridgePanics.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetCacheSize(n int) {
	if m != nil {
		m.cacheSize.Set(float64(n))
	}
}

func (m *Metrics) Evicted() {
	if m != nil {
		m.evictions.Inc()
	}
}
