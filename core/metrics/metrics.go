package metrics

import (
	"time"

	"github.com/kilianp07/railsched/core/kpi"
)

// KPISnapshot is a KPI report taken at a point in time. Source is the
// schedule source ("baseline", "optimized") the report was computed on.
type KPISnapshot struct {
	Source string
	Report kpi.Report
	Time   time.Time
}

// MetricsSink records KPI snapshots for observability purposes.
type MetricsSink interface {
	RecordKPIs(s KPISnapshot) error
}

// OptimizationRun describes one optimizer invocation.
type OptimizationRun struct {
	ScheduleID      string
	Solver          string
	ObjectiveBefore float64
	ObjectiveAfter  float64
	Iterations      int
	Swaps           int
	Duration        time.Duration
	Accepted        bool
	Error           string
	Time            time.Time
}

// OptimizationRecorder records optimizer runs.
type OptimizationRecorder interface {
	RecordOptimization(r OptimizationRun) error
}

// DisruptionRecord captures the application or resolution of an event.
type DisruptionRecord struct {
	EventID  string
	Kind     string
	Action   string
	Affected int
	Cascaded int
	Residual int
	Time     time.Time
}

// DisruptionRecorder records disruption events.
type DisruptionRecorder interface {
	RecordDisruption(r DisruptionRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordKPIs(KPISnapshot) error             { return nil }
func (NopSink) RecordOptimization(OptimizationRun) error { return nil }
func (NopSink) RecordDisruption(DisruptionRecord) error  { return nil }

var (
	_ OptimizationRecorder = NopSink{}
	_ DisruptionRecorder   = NopSink{}
)
