package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coldwave/flake-go/pkg/wire"
)

// metrics are the router's Prometheus collectors.
type metrics struct {
	requests        *prometheus.CounterVec
	sessions        prometheus.Gauge
	objects         *prometheus.GaugeVec
	forwarded       *prometheus.CounterVec
	forwardDuration prometheus.Histogram
	broadcasts      *prometheus.CounterVec
	authFailures    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flake",
				Subsystem: "router",
				Name:      "requests_total",
				Help:      "Requests answered by the router, by message type and status",
			},
			[]string{"msg_type", "status"},
		),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "flake",
			Subsystem: "router",
			Name:      "sessions",
			Help:      "Connected sessions",
		}),
		objects: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flake",
				Subsystem: "router",
				Name:      "objects",
				Help:      "Registered objects by host",
			},
			[]string{"host"},
		),
		forwarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flake",
				Subsystem: "router",
				Name:      "forwarded_total",
				Help:      "Requests forwarded to hosting sessions, by indication and status",
			},
			[]string{"msg_type", "status"},
		),
		forwardDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flake",
			Subsystem: "router",
			Name:      "forward_duration_seconds",
			Help:      "Round trip of forwarded requests",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		broadcasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flake",
				Subsystem: "router",
				Name:      "broadcasts_total",
				Help:      "Broadcast frames fanned out, by message type",
			},
			[]string{"msg_type"},
		),
		authFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "flake",
			Subsystem: "router",
			Name:      "auth_failures_total",
			Help:      "Refused connect and auth requests",
		}),
	}
}

func (m *metrics) request(t wire.MessageType, s wire.Status) {
	m.requests.WithLabelValues(t.String(), s.String()).Inc()
}

func (m *metrics) forward(t wire.MessageType, s wire.Status, since time.Time) {
	m.forwarded.WithLabelValues(t.String(), s.String()).Inc()
	m.forwardDuration.Observe(time.Since(since).Seconds())
}

func (m *metrics) broadcast(t wire.MessageType, fanout int) {
	m.broadcasts.WithLabelValues(t.String()).Add(float64(fanout))
}

func hostLabel(o *object) string {
	if o.routerHosted() {
		return "router"
	}
	return "service"
}
