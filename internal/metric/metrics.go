// Package metric holds the gateway's Prometheus collectors.
package metric

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dconnect"

// Route labels.
const (
	RouteBuiltin  = "builtin"
	RoutePlugin   = "plugin"
	RouteRejected = "rejected"
)

// Metrics contains the dispatch metrics and the registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Timeouts         *prometheus.CounterVec
	InFlight         prometheus.Gauge

	inFlight atomic.Int64
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "total",
				Help:      "Requests answered, by route and result code",
			},
			[]string{"route", "result"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time from dispatch to envelope delivery",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "timeouts_total",
				Help:      "Plugin requests answered by the response timer",
			},
			[]string{"plugin"},
		),

		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "in_flight",
				Help:      "Requests dispatched but not yet answered",
			},
		),
	}

	m.registry.MustRegister(
		m.DispatchTotal,
		m.DispatchDuration,
		m.Timeouts,
		m.InFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Started marks a request as in flight.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Add(1)
	m.InFlight.Inc()
}

// Answered records a delivered envelope.
func (m *Metrics) Answered(route string, result int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Add(-1)
	m.InFlight.Dec()
	m.DispatchTotal.WithLabelValues(route, strconv.Itoa(result)).Inc()
	m.DispatchDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// TimedOut records a response sent by the timer.
func (m *Metrics) TimedOut(plugin string) {
	if m == nil {
		return
	}
	m.Timeouts.WithLabelValues(plugin).Inc()
}

// InFlightCount returns the number of requests not yet answered.
func (m *Metrics) InFlightCount() int64 {
	if m == nil {
		return 0
	}
	return m.inFlight.Load()
}
