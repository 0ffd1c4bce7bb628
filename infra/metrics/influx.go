package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/infra/logger"
)

// InfluxSink writes scheduling observations to an InfluxDB instance using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordKPIs writes one kpi_snapshot point and one kpi_class point per
// train class.
func (s *InfluxSink) RecordKPIs(snap coremetrics.KPISnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r := snap.Report
	p := write.NewPointWithMeasurement("kpi_snapshot").
		AddTag("source", snap.Source).
		AddTag("schedule_id", r.ScheduleID).
		AddField("punctuality_rate", round3(r.PunctualityRate)).
		AddField("average_delay_minutes", round3(r.AverageDelayMinutes)).
		AddField("throughput_per_hour", round3(r.ThroughputPerHour)).
		AddField("track_utilization", round3(r.TrackUtilization)).
		AddField("total_trains", r.TotalTrains).
		AddField("delayed_trains", r.DelayedTrains).
		AddField("cancelled_trains", r.CancelledTrains).
		SetTime(snap.Time)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return err
	}
	for cls, perf := range r.PriorityPerformance {
		if perf.Count == 0 {
			continue
		}
		cp := write.NewPointWithMeasurement("kpi_class").
			AddTag("source", snap.Source).
			AddTag("class", string(cls)).
			AddField("count", perf.Count).
			AddField("avg_delay", round3(perf.AvgDelay)).
			AddField("punctuality", round3(perf.Punctuality)).
			SetTime(snap.Time)
		if err := s.writeAPI.WritePoint(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// RecordOptimization writes an optimization_run point.
func (s *InfluxSink) RecordOptimization(run coremetrics.OptimizationRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimization_run").
		AddTag("schedule_id", run.ScheduleID).
		AddTag("solver", run.Solver).
		AddTag("accepted", strconv.FormatBool(run.Accepted)).
		AddField("objective_before", round3(run.ObjectiveBefore)).
		AddField("objective_after", round3(run.ObjectiveAfter)).
		AddField("iterations", run.Iterations).
		AddField("swaps", run.Swaps).
		AddField("duration_ms", round3(run.Duration.Seconds()*1000)).
		AddField("errors", run.Error).
		SetTime(run.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDisruption writes a disruption_event point.
func (s *InfluxSink) RecordDisruption(rec coremetrics.DisruptionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("disruption_event").
		AddTag("event_id", rec.EventID).
		AddTag("kind", rec.Kind).
		AddTag("action", rec.Action).
		AddField("affected", rec.Affected).
		AddField("cascaded", rec.Cascaded).
		AddField("residual", rec.Residual).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
