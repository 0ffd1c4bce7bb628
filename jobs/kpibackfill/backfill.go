// Package kpibackfill recomputes KPI snapshots from journaled schedules and
// pushes them to a metrics sink, for example after a sink outage.
package kpibackfill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/railsched/core/journal"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/core/model"
)

// Source labels the snapshots written by Backfill.
const Source = "backfill"

// Backfill processes the schedule records matching q and records one KPI
// snapshot per schedule, stamped with the record time. It returns the number
// of snapshots written.
func Backfill(ctx context.Context, store journal.Store, calc kpi.Calculator, trackCount int, sink metrics.MetricsSink, q journal.Query) (int, error) {
	q.Kind = journal.KindSchedule
	history, err := store.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range history {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var s model.Schedule
		if err := json.Unmarshal(rec.Payload, &s); err != nil {
			return n, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		snap := metrics.KPISnapshot{Source: Source, Report: calc.Calculate(&s, trackCount), Time: rec.Timestamp}
		if err := sink.RecordKPIs(snap); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
