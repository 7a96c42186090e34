package realtime

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports hub activity to Prometheus. It is an Observer.
type Metrics struct {
	registry *prometheus.Registry

	connects     prometheus.Counter
	disconnects  prometheus.Counter
	received     *prometheus.CounterVec
	joins        prometheus.Counter
	broadcasts   *prometheus.CounterVec
	deliveries   prometheus.Counter
	drops        *prometheus.CounterVec
	transportErr *prometheus.CounterVec
}

// NewMetrics registers the realtime collectors on a dedicated registry.
// Connection and room gauges are read from stats at scrape time.
func NewMetrics(stats func() Stats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_connections_opened_total",
			Help: "Total number of accepted realtime connections",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_connections_closed_total",
			Help: "Total number of realtime connections torn down",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_received_total",
			Help: "Inbound client events by name",
		}, []string{"event"}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_room_joins_total",
			Help: "Membership additions",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Broadcasts to non-empty rooms by event",
		}, []string{"event"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Messages handed to connections",
		}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_dropped_total",
			Help: "Messages not handed to a connection, by reason",
		}, []string{"reason"}),
		transportErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_connection_errors_total",
			Help: "Transport and protocol errors by kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.connects, m.disconnects, m.received, m.joins,
		m.broadcasts, m.deliveries, m.drops, m.transportErr,
	)

	if stats != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "realtime_connections",
				Help: "Live realtime connections",
			}, func() float64 { return float64(stats().Connections) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "realtime_rooms",
				Help: "Rooms with at least one member",
			}, func() float64 { return float64(stats().Rooms) }),
		)
	}

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Connected(string) { m.connects.Inc() }

func (m *Metrics) Disconnected(string, []string) { m.disconnects.Inc() }

func (m *Metrics) Failed(_ string, err error) {
	m.transportErr.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) Received(_, event string) { m.received.WithLabelValues(event).Inc() }

func (m *Metrics) Joined(string, string) { m.joins.Inc() }

func (m *Metrics) Broadcast(_, event string, _, delivered int) {
	m.broadcasts.WithLabelValues(event).Inc()
	m.deliveries.Add(float64(delivered))
}

func (m *Metrics) Dropped(_, _, _ string, err error) {
	m.drops.WithLabelValues(errorKind(err)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrSendBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrConnClosed):
		return "closed"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "other"
	}
}

var _ Observer = (*Metrics)(nil)
