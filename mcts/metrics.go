package mcts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stop reasons recorded on brawldraft_search_runs_total.
const (
	reasonTimeout = "timeout"
	reasonStopped = "stopped"
	reasonError   = "error"
	reasonEmpty   = "empty"
)

// Metrics records search activity. A nil *Metrics records nothing.
type Metrics struct {
	iterations prometheus.Counter
	failed     prometheus.Counter
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	treeNodes  prometheus.Gauge
}

// NewMetrics registers the search metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		iterations: f.NewCounter(prometheus.CounterOpts{
			Name: "brawldraft_search_iterations_total",
			Help: "Completed search iterations.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "brawldraft_search_failed_iterations_total",
			Help: "Search iterations abandoned after an error.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brawldraft_search_runs_total",
			Help: "Finished search runs by stop reason.",
		}, []string{"reason"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "brawldraft_search_run_duration_seconds",
			Help:    "Wall time of a search run.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 7, 10, 20, 60},
		}),
		treeNodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "brawldraft_search_tree_nodes",
			Help: "Nodes in the tree of the last finished run.",
		}),
	}
}

func (m *Metrics) iteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

func (m *Metrics) failedIteration() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

func (m *Metrics) finished(reason string, elapsed time.Duration, nodes int64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(reason).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.treeNodes.Set(float64(nodes))
}
