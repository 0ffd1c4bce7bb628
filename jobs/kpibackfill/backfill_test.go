package kpibackfill

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/railsched/core/journal"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/core/model"
)

type memSink struct {
	metrics.NopSink
	snaps []metrics.KPISnapshot
}

func (m *memSink) RecordKPIs(s metrics.KPISnapshot) error {
	m.snaps = append(m.snaps, s)
	return nil
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	t0 := time.Date(2025, 9, 26, 10, 0, 0, 0, time.UTC)
	s := model.NewSchedule("s1", model.SourceBaseline, t0)
	s.Trains["T1"] = &model.TrainSchedule{TrainID: "T1", Priority: 1, DelayMinutes: 20, Status: model.StatusDelayed,
		Segments: []model.Segment{{TrainID: "T1", TrackID: "X", Start: t0, End: t0.Add(time.Hour)}}}
	s.Trains["T2"] = &model.TrainSchedule{TrainID: "T2", Priority: 3, Status: model.StatusScheduled}

	for _, rec := range []struct {
		kind journal.Kind
		at   time.Time
	}{{journal.KindSchedule, t0}, {journal.KindOptimization, t0.Add(time.Minute)}, {journal.KindSchedule, t0.Add(2 * time.Hour)}} {
		r, err := journal.NewRecord(rec.kind, s.ID, "", s, rec.at)
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, r))
	}

	sink := &memSink{}
	n, err := Backfill(ctx, store, kpi.NewCalculator(), 2, sink, journal.Query{End: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sink.snaps, 1)
	snap := sink.snaps[0]
	assert.Equal(t, Source, snap.Source)
	assert.True(t, snap.Time.Equal(t0))
	assert.Equal(t, "s1", snap.Report.ScheduleID)
	assert.Equal(t, 50.0, snap.Report.PunctualityRate)
	assert.Equal(t, 10.0, snap.Report.AverageDelayMinutes)

	n, err = Backfill(ctx, store, kpi.NewCalculator(), 2, sink, journal.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
