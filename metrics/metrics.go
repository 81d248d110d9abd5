// Package metrics exposes the coordinator's Prometheus instrumentation: the
// count of running workers, objective-bound narrowing, and terminal-outcome
// counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkersRunning reports how many workers currently have a solve in
	// flight.
	WorkersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parsolve_workers_running",
			Help: "Number of workers with a solve request currently in flight",
		},
	)

	// TerminalOutcomes counts terminal reports observed by the coordinator's
	// reader thread, labeled by outcome (satisfiable, unsatisfiable,
	// optimum-found, unknown).
	TerminalOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsolve_terminal_outcomes_total",
			Help: "Total terminal outcomes observed, by outcome kind",
		},
		[]string{"outcome"},
	)

	// CubesGenerated counts cubes handed to workers by the EPS/partition
	// generators.
	CubesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parsolve_cubes_generated_total",
			Help: "Total cubes generated and dispatched to a worker",
		},
	)

	// ObjectiveSpan reports the current width of the global objective
	// interval (upper - lower), narrowing over the course of a portfolio
	// search.
	ObjectiveSpan = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parsolve_objective_span",
			Help: "Current width of the global objective bound interval",
		},
	)

	// RebalanceCount counts how many times the portfolio strategy
	// recomputed its allocation vector.
	RebalanceCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parsolve_rebalance_total",
			Help: "Total number of portfolio bound-allocation rebalances",
		},
	)

	// SearchDuration times a full coordinator Solve call end to end.
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parsolve_search_duration_seconds",
			Help:    "Time taken for a full Solve call to reach a terminal outcome",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersRunning)
	prometheus.MustRegister(TerminalOutcomes)
	prometheus.MustRegister(CubesGenerated)
	prometheus.MustRegister(ObjectiveSpan)
	prometheus.MustRegister(RebalanceCount)
	prometheus.MustRegister(SearchDuration)
}

// Handler returns the HTTP handler a cmd/ binary mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and records it against h on Stop.
type Timer struct {
	t *prometheus.Timer
}

// NewTimer starts timing against h, recorded when Stop is called.
func NewTimer(h prometheus.Histogram) *Timer {
	return &Timer{t: prometheus.NewTimer(h)}
}

// Stop records the elapsed duration.
func (t *Timer) Stop() {
	t.t.ObserveDuration()
}
