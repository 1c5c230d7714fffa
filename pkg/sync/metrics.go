package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CyclesTotal counts sync passes by result
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravitask_sync_cycles_total",
			Help: "Sync cycles run, by result",
		},
		[]string{"result"},
	)

	// ConflictsTotal counts queued ops dropped after the daemon refused the replay
	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gravitask_sync_conflicts_total",
			Help: "Queued ops dropped because the daemon rejected them",
		},
	)

	// QueuedOps tracks the local offline queue depth
	QueuedOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravitask_sync_queued_ops",
			Help: "Mutations queued locally and not yet flushed",
		},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(QueuedOps)
}
