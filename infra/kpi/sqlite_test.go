package kpi

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corekpi "github.com/kilianp07/railsched/core/kpi"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
)

func TestSQLiteStoreAggregatesPerDay(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kpi.db"))
	require.NoError(t, err)
	defer s.Close()

	day1 := time.Date(2025, 9, 26, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	snaps := []coremetrics.KPISnapshot{
		{Source: "current", Time: day1, Report: corekpi.Report{PunctualityRate: 100, AverageDelayMinutes: 0, TrackUtilization: 10, DelayedTrains: 0}},
		{Source: "current", Time: day1.Add(3 * time.Hour), Report: corekpi.Report{PunctualityRate: 50, AverageDelayMinutes: 15, TrackUtilization: 20, DelayedTrains: 3, CancelledTrains: 1}},
		{Source: "baseline", Time: day1, Report: corekpi.Report{PunctualityRate: 10}},
		{Source: "current", Time: day2, Report: corekpi.Report{PunctualityRate: 80, DelayedTrains: 1}},
	}
	for _, snap := range snaps {
		require.NoError(t, s.RecordKPIs(snap))
	}

	recs, err := s.Query("current", day1, day2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Day(day1), recs[0].Date)
	assert.Equal(t, 2, recs[0].Snapshots)
	assert.Equal(t, 75.0, recs[0].Punctuality)
	assert.Equal(t, 7.5, recs[0].AverageDelay)
	assert.Equal(t, 15.0, recs[0].Utilization)
	assert.Equal(t, 3, recs[0].MaxDelayedTrains)
	assert.Equal(t, 1, recs[0].Cancelled)
	assert.Equal(t, 80.0, recs[1].Punctuality)

	recs, err = s.Query("current", day2, day2)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = s.Query("baseline", day1, day1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 10.0, recs[0].Punctuality)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	in := time.Date(2025, 9, 27, 1, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 9, 26, 0, 0, 0, 0, time.UTC), Day(in))
}
