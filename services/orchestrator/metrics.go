package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trapEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantomd_trap_events_total",
		Help: "Filesystem events seen by the sensor, by operation.",
	}, []string{"op"})

	alertsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantomd_alerts_published_total",
		Help: "Alerts delivered to the bus.",
	})

	alertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantomd_alerts_dropped_total",
		Help: "Alerts that failed to publish.",
	})
)
