package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SimAlpha tracks the current simulation temperature
	SimAlpha = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravitask_sim_alpha",
			Help: "Current temperature of the force simulation",
		},
	)

	// SimNodes tracks the size of the working set
	SimNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravitask_sim_nodes",
			Help: "Number of nodes in the current layout",
		},
	)

	// SimTicksTotal tracks integration steps across all runs
	SimTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gravitask_sim_ticks_total",
			Help: "Total number of simulation ticks executed",
		},
	)

	// SimRunsTotal tracks how many times a layout was (re)started
	SimRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gravitask_sim_runs_total",
			Help: "Total number of simulation starts, including reconciliations",
		},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(SimAlpha)
	prometheus.MustRegister(SimNodes)
	prometheus.MustRegister(SimTicksTotal)
	prometheus.MustRegister(SimRunsTotal)
}
