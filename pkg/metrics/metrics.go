// Package metrics defines the Prometheus metrics exported by the agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle results.
const (
	ResultOK          = "ok"
	ResultSourceError = "source_error"
	ResultStoreError  = "store_error"
)

// Metrics holds the poll loop instruments.
type Metrics struct {
	Cycles    *prometheus.CounterVec
	Routes    prometheus.Gauge
	Stale     prometheus.Counter
	Anomalies prometheus.Counter
	Duration  prometheus.Histogram
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "birdsync_cycles_total",
			Help: "Reconciliation cycles by result.",
		}, []string{"result"}),
		Routes: f.NewGauge(prometheus.GaugeOpts{
			Name: "birdsync_routes",
			Help: "Routes written by the last successful cycle.",
		}),
		Stale: f.NewCounter(prometheus.CounterOpts{
			Name: "birdsync_stale_routes_total",
			Help: "Routes removed because they disappeared from the routing table.",
		}),
		Anomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "birdsync_store_anomalies_total",
			Help: "Written routes that did not read back as written.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdsync_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
