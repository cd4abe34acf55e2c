package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facility_live"

// Metrics holds the collectors updated by the connection manager.
type Metrics struct {
	FramesReceived    *prometheus.CounterVec
	UpdatesDelivered  *prometheus.CounterVec
	ParseErrors       prometheus.Counter
	DuplicatesDropped prometheus.Counter
	Sessions          prometheus.Counter
	Reconnects        prometheus.Counter
	ConnectionState   prometheus.Gauge
	Subscriptions     prometheus.Gauge
	Consumers         prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is useful when nothing scrapes the process.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stomp_frames_received_total",
			Help:      "STOMP frames received, by command.",
		}, []string{"command"}),
		UpdatesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_delivered_total",
			Help:      "Update events handed to consumers, by update type.",
		}, []string{"update_type"}),
		ParseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "MESSAGE bodies that could not be parsed into an update.",
		}),
		DuplicatesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "MESSAGE frames dropped because their message-id was already seen.",
		}),
		Sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Completed STOMP handshakes.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Sessions that ended unexpectedly and were scheduled for reconnection.",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.",
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Topics with at least one consumer.",
		}),
		Consumers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumers",
			Help:      "Registered consumer callbacks across all topics.",
		}),
	}
}

// SetRegistry records the registry sizes.
func (m *Metrics) SetRegistry(topics, consumers int) {
	m.Subscriptions.Set(float64(topics))
	m.Consumers.Set(float64(consumers))
}
