package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	schedulesGenerated  prometheus.Counter
	optimizationLatency *prometheus.HistogramVec
	disruptionsApplied  *prometheus.CounterVec
	residualConflicts   prometheus.Counter
	busyRejections      prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	gen := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railsched_engine_schedules_generated_total",
		Help: "Number of baseline schedules generated",
	})
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "railsched_engine_optimization_latency_seconds",
			Help:    "Duration of optimizer runs, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	dis := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railsched_engine_disruptions_applied_total",
			Help: "Number of disruption events applied to the current schedule",
		},
		[]string{"kind"},
	)
	res := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railsched_engine_residual_conflicts_total",
		Help: "Conflicts left unresolved after disruption cascades",
	})
	busy := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railsched_engine_busy_rejections_total",
		Help: "Mutations abandoned while waiting for a running search",
	})
	return gen, lat, dis, res, busy
}

func init() {
	schedulesGenerated, optimizationLatency, disruptionsApplied, residualConflicts, busyRejections = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers engine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(schedulesGenerated, optimizationLatency, disruptionsApplied, residualConflicts, busyRejections)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	schedulesGenerated, optimizationLatency, disruptionsApplied, residualConflicts, busyRejections = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
