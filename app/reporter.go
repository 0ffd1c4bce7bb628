package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/railsched/config"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/infra/logger"
)

// KPISource exposes the current indicators. *engine.Engine satisfies it.
type KPISource interface {
	KPIs() (kpi.Report, error)
	Improvement() (kpi.Improvement, error)
}

// Reporter logs the current KPIs on a cron schedule.
type Reporter struct {
	cron *cron.Cron
	src  KPISource
	log  logger.Logger
}

func NewReporter(cfg config.ReporterConfig, src KPISource, log logger.Logger) (*Reporter, error) {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	r := &Reporter{cron: cron.New(), src: src, log: log}
	if _, err := r.cron.AddFunc(cfg.Schedule, r.Report); err != nil {
		return nil, fmt.Errorf("reporter schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

func (r *Reporter) Start() { r.cron.Start() }

// Stop halts the schedule. The context is done once a running report ends.
func (r *Reporter) Stop() context.Context { return r.cron.Stop() }

// Report logs one KPI line. Before the first schedule it logs nothing.
func (r *Reporter) Report() {
	rep, err := r.src.KPIs()
	if err != nil {
		r.log.Debugf("kpi report skipped: %v", err)
		return
	}
	fields := map[string]any{
		"schedule_id":       rep.ScheduleID,
		"punctuality":       rep.PunctualityRate,
		"avg_delay_minutes": rep.AverageDelayMinutes,
		"throughput":        rep.ThroughputPerHour,
		"utilization":       rep.TrackUtilization,
		"delayed":           rep.DelayedTrains,
		"cancelled":         rep.CancelledTrains,
	}
	if imp, err := r.src.Improvement(); err == nil {
		fields["punctuality_gain"] = imp.Punctuality
		fields["delay_reduction"] = imp.DelayReduction
	}
	r.log.Debugw("kpi report", fields)
	r.log.Infof("kpi %s: punctuality %.2f%%, avg delay %.2f min", rep.ScheduleID, rep.PunctualityRate, rep.AverageDelayMinutes)
}
