package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the conference server's Prometheus collectors.
type Metrics struct {
	Rooms            prometheus.Gauge
	Participants     prometheus.Gauge
	PresenceUpdates  *prometheus.CounterVec
	Negotiations     prometheus.Counter
	ForwardedPackets prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meet",
			Name:      "rooms",
			Help:      "Rooms with at least one participant.",
		}),
		Participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meet",
			Name:      "participants",
			Help:      "Participants joined across all rooms.",
		}),
		PresenceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meet",
			Name:      "presence_updates_total",
			Help:      "Video presence changes broadcast to rooms.",
		}, []string{"video"}),
		Negotiations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meet",
			Name:      "negotiations_total",
			Help:      "SDP offers sent to participants.",
		}),
		ForwardedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meet",
			Name:      "forwarded_rtp_packets_total",
			Help:      "RTP packets forwarded from publishers to subscriber tracks.",
		}),
	}
	reg.MustRegister(m.Rooms, m.Participants, m.PresenceUpdates, m.Negotiations, m.ForwardedPackets)
	return m
}
