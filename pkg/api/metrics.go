package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// GraphVersion tracks the daemon's current graph version
	GraphVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravitask_graph_version",
			Help: "Monotonic version of the shared task graph",
		},
	)

	// WatchClients tracks connected change-feed subscribers
	WatchClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravitask_watch_clients",
			Help: "Number of connected watch subscribers",
		},
	)

	// LayoutRequestsTotal tracks server-side layout passes by mode and cache outcome
	LayoutRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravitask_layout_requests_total",
			Help: "Total layout requests served, by mode and cache outcome",
		},
		[]string{"mode", "cache"},
	)

	// RequestDuration tracks HTTP handler latency
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gravitask_http_request_seconds",
			Help:    "HTTP request duration by path and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(GraphVersion)
	prometheus.MustRegister(WatchClients)
	prometheus.MustRegister(LayoutRequestsTotal)
	prometheus.MustRegister(RequestDuration)
}
