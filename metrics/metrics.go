// Package metrics exposes Prometheus collectors for the forwarding pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hop.computer/passage/core"
)

// Metrics holds the collectors for one process. Each instance has its own
// registry.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	reconnects *prometheus.CounterVec
	state      *prometheus.GaugeVec
	inflight   *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passage",
			Name:      "requests_total",
			Help:      "Relayed requests by connection and final status code.",
		}, []string{"connection", "code"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passage",
			Name:      "relayed_bytes_total",
			Help:      "Response body bytes written back to the relay.",
		}, []string{"connection"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "passage",
			Name:      "request_duration_seconds",
			Help:      "Time from accepting a relayed request to closing its response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"connection"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passage",
			Name:      "reconnects_total",
			Help:      "Failed or lost relay channels.",
		}, []string{"connection"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "passage",
			Name:      "connection_state",
			Help:      "Connectivity state: 0 Connecting, 1 Online, 2 Offline, 3 Closed.",
		}, []string{"connection"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "passage",
			Name:      "inflight_requests",
			Help:      "Requests currently being forwarded.",
		}, []string{"connection"}),
	}
	m.registry.MustRegister(m.requests, m.bytes, m.duration, m.reconnects, m.state, m.inflight)
	return m
}

// ObserveRequest records a completed request.
func (m *Metrics) ObserveRequest(connection string, code int, written int64, d time.Duration) {
	m.requests.WithLabelValues(connection, strconv.Itoa(code)).Inc()
	m.bytes.WithLabelValues(connection).Add(float64(written))
	m.duration.WithLabelValues(connection).Observe(d.Seconds())
}

// Reconnect counts a lost or failed channel.
func (m *Metrics) Reconnect(connection string) {
	m.reconnects.WithLabelValues(connection).Inc()
}

// SetState records the connectivity state of a connection.
func (m *Metrics) SetState(connection string, s core.ConnectionState) {
	m.state.WithLabelValues(connection).Set(float64(s))
}

// TrackInFlight counts a started request. Call the returned function when it
// completes.
func (m *Metrics) TrackInFlight(connection string) func() {
	g := m.inflight.WithLabelValues(connection)
	g.Inc()
	return g.Dec
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
