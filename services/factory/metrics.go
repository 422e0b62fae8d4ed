package factory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trapsDeployed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantomd_traps_deployed_total",
		Help: "Trap artifacts successfully planted.",
	})

	tasksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantomd_trap_tasks_skipped_total",
		Help: "Manifest tasks skipped over a missing template or a failed build.",
	})

	inventoryFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantomd_inventory_files",
		Help: "Artifacts currently present under the traps root.",
	})
)
