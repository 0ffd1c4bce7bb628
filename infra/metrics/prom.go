package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/railsched/core/metrics"
)

// PromSink exposes KPI snapshots, optimizer runs and disruptions as
// Prometheus metrics.
type PromSink struct {
	punctuality  *prometheus.GaugeVec
	avgDelay     *prometheus.GaugeVec
	throughput   *prometheus.GaugeVec
	utilization  *prometheus.GaugeVec
	trains       *prometheus.GaugeVec
	classOnTime  *prometheus.GaugeVec
	optRuns      *prometheus.CounterVec
	optDuration  *prometheus.HistogramVec
	optObjective *prometheus.GaugeVec
	disruptions  *prometheus.CounterVec
	residual     prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		punctuality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_punctuality_rate_percent",
			Help: "Share of trains arriving within the on-time threshold",
		}, []string{"source"}),
		avgDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_average_delay_minutes",
			Help: "Mean delay over all trains of the schedule",
		}, []string{"source"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_throughput_trains_per_hour",
			Help: "Trains per hour over the reporting window",
		}, []string{"source"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_track_utilization_percent",
			Help: "Reserved track time over available track time",
		}, []string{"source"}),
		trains: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_trains",
			Help: "Trains of the schedule by status",
		}, []string{"source", "status"}),
		classOnTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_class_punctuality_percent",
			Help: "Punctuality rate per train class",
		}, []string{"source", "class"}),
		optRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railsched_optimization_runs_total",
			Help: "Optimizer invocations by solver and outcome",
		}, []string{"solver", "accepted"}),
		optDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "railsched_optimization_duration_seconds",
			Help:    "Wall time of optimizer runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"solver"}),
		optObjective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railsched_optimization_objective",
			Help: "Weighted delay objective before and after the last run",
		}, []string{"stage"}),
		disruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railsched_disruptions_total",
			Help: "Disruption events by kind and action",
		}, []string{"kind", "action"}),
		residual: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railsched_disruption_residual_conflicts",
			Help: "Conflicts left unresolved by the last disruption",
		}),
	}
	var err error
	if s.punctuality, err = register(reg, s.punctuality); err != nil {
		return nil, err
	}
	if s.avgDelay, err = register(reg, s.avgDelay); err != nil {
		return nil, err
	}
	if s.throughput, err = register(reg, s.throughput); err != nil {
		return nil, err
	}
	if s.utilization, err = register(reg, s.utilization); err != nil {
		return nil, err
	}
	if s.trains, err = register(reg, s.trains); err != nil {
		return nil, err
	}
	if s.classOnTime, err = register(reg, s.classOnTime); err != nil {
		return nil, err
	}
	if s.optRuns, err = register(reg, s.optRuns); err != nil {
		return nil, err
	}
	if s.optDuration, err = register(reg, s.optDuration); err != nil {
		return nil, err
	}
	if s.optObjective, err = register(reg, s.optObjective); err != nil {
		return nil, err
	}
	if s.disruptions, err = register(reg, s.disruptions); err != nil {
		return nil, err
	}
	if s.residual, err = register(reg, s.residual); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordKPIs sets the gauges for the snapshot source.
func (s *PromSink) RecordKPIs(snap coremetrics.KPISnapshot) error {
	r := snap.Report
	src := snap.Source
	s.punctuality.WithLabelValues(src).Set(r.PunctualityRate)
	s.avgDelay.WithLabelValues(src).Set(r.AverageDelayMinutes)
	s.throughput.WithLabelValues(src).Set(r.ThroughputPerHour)
	s.utilization.WithLabelValues(src).Set(r.TrackUtilization)
	s.trains.WithLabelValues(src, "on_time").Set(float64(r.OnTimeTrains))
	s.trains.WithLabelValues(src, "delayed").Set(float64(r.DelayedTrains))
	s.trains.WithLabelValues(src, "cancelled").Set(float64(r.CancelledTrains))
	s.trains.WithLabelValues(src, "incomplete").Set(float64(r.IncompleteTrains))
	for cls, perf := range r.PriorityPerformance {
		s.classOnTime.WithLabelValues(src, string(cls)).Set(perf.Punctuality)
	}
	return nil
}

// RecordOptimization counts the run and observes its duration.
func (s *PromSink) RecordOptimization(run coremetrics.OptimizationRun) error {
	s.optRuns.WithLabelValues(run.Solver, strconv.FormatBool(run.Accepted)).Inc()
	s.optDuration.WithLabelValues(run.Solver).Observe(run.Duration.Seconds())
	s.optObjective.WithLabelValues("before").Set(run.ObjectiveBefore)
	if run.Accepted {
		s.optObjective.WithLabelValues("after").Set(run.ObjectiveAfter)
	}
	return nil
}

// RecordDisruption counts the event and tracks unresolved conflicts.
func (s *PromSink) RecordDisruption(rec coremetrics.DisruptionRecord) error {
	s.disruptions.WithLabelValues(rec.Kind, rec.Action).Inc()
	if rec.Action == "applied" {
		s.residual.Set(float64(rec.Residual))
	}
	return nil
}
