package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Live websocket transports.",
	})

	envelopesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "ws",
		Name:      "envelopes_total",
		Help:      "Inbound envelopes by type.",
	}, []string{"type"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "ws",
		Name:      "dropped_envelopes_total",
		Help:      "Outbound envelopes dropped under backpressure.",
	})
)
