package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts stream activity. A nil *Metrics records nothing.
type Metrics struct {
	connections *prometheus.CounterVec
	events      *prometheus.CounterVec
	dropped     prometheus.Counter
}

// NewMetrics registers the stream collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teamdash_notify_connections_total",
			Help: "Notification socket connection attempts by result.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teamdash_notify_events_total",
			Help: "Notifications received by event name.",
		}, []string{"event"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "teamdash_notify_dropped_total",
			Help: "Inbound frames dropped as malformed.",
		}),
	}
}

func (m *Metrics) observeConnect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "fail"
	}
	m.connections.WithLabelValues(result).Inc()
}

func (m *Metrics) observeEvent(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) observeDrop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
