package scenarios

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/railsched/core/engine"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/infra/logger"
	"github.com/kilianp07/railsched/infra/metrics"
	"github.com/kilianp07/railsched/internal/eventbus"
	"github.com/kilianp07/railsched/scenario"
)

// RunScenario generates the schedule of c, applies its disruptions in order
// and checks the expectations.
func RunScenario(t *testing.T, c *Case) {
	t.Helper()
	sc, err := c.File.Resolve()
	if err != nil {
		t.Fatalf("resolve %s: %v", c.Name, err)
	}

	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := metrics.StartEventCollector(ctx, bus, sink)
	defer func() {
		cancel()
		<-done
	}()

	cfg := engine.DefaultConfig()
	if c.Optimizer != nil {
		cfg.Optimizer = *c.Optimizer
	}
	eng, err := engine.New(cfg, engine.WithBus(bus), engine.WithSink(sink), engine.WithLogger(logger.NopLogger{}))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer eng.Close()

	res, err := eng.GenerateSchedule(ctx, sc.Trains, sc.Network)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if want := c.Expected.Optimized; want != nil && *want != res.Optimized {
		t.Errorf("optimized: got %v want %v (err %v)", res.Optimized, *want, res.OptimizationErr)
	}
	before := res.Schedule

	outcomes, err := scenario.Replay(ctx, eng, sc, 0, logger.NopLogger{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(outcomes) != len(sc.Disruptions) {
		t.Fatalf("expected %d accepted disruptions got %d", len(sc.Disruptions), len(outcomes))
	}
	residual := 0
	for _, o := range outcomes {
		residual += len(o.Residual)
	}
	if residual != c.Expected.Residual {
		t.Errorf("residual conflicts: got %d want %d", residual, c.Expected.Residual)
	}

	after, err := eng.CurrentSchedule()
	if err != nil {
		t.Fatalf("current schedule: %v", err)
	}
	for id, want := range c.Expected.Trains {
		got, ok := after.Trains[id]
		if !ok {
			t.Errorf("train %s missing from schedule", id)
			continue
		}
		checkTrain(t, id, got, before.Trains[id], want)
	}
	if c.Expected.NoConflicts {
		if conflicts := after.Conflicts(0); len(conflicts) > 0 {
			t.Errorf("unexpected conflicts: %v", conflicts)
		}
	}

	report, err := eng.KPIs()
	if err != nil {
		t.Fatalf("kpis: %v", err)
	}
	if lo := c.Expected.MinPunctuality; lo != nil && report.PunctualityRate < *lo {
		t.Errorf("punctuality %.2f below %.2f", report.PunctualityRate, *lo)
	}
	if hi := c.Expected.MaxAverageDelay; hi != nil && report.AverageDelayMinutes > *hi {
		t.Errorf("average delay %.2f above %.2f", report.AverageDelayMinutes, *hi)
	}

	families, err := reg.Gather()
	if err != nil || len(families) == 0 {
		t.Errorf("no metrics gathered: %v", err)
	}
}

const epsilon = 1e-6

func checkTrain(t *testing.T, id string, got, before *model.TrainSchedule, want TrainExpectation) {
	t.Helper()
	if want.Status != "" && string(got.Status) != want.Status {
		t.Errorf("%s status: got %s want %s", id, got.Status, want.Status)
	}
	if d := want.DelayMinutes; d != nil && (got.DelayMinutes < *d-epsilon || got.DelayMinutes > *d+epsilon) {
		t.Errorf("%s delay: got %.2f want %.2f", id, got.DelayMinutes, *d)
	}
	if d := want.MinDelay; d != nil && got.DelayMinutes < *d {
		t.Errorf("%s delay %.2f below %.2f", id, got.DelayMinutes, *d)
	}
	if d := want.MaxDelay; d != nil && got.DelayMinutes > *d {
		t.Errorf("%s delay %.2f above %.2f", id, got.DelayMinutes, *d)
	}
	if at := want.DepartsNotBefore; at != nil && got.Departure().Before(*at) {
		t.Errorf("%s departs %s before %s", id, got.Departure(), *at)
	}
	if at := want.DepartsAt; at != nil && !got.Departure().Equal(*at) {
		t.Errorf("%s departs %s want %s", id, got.Departure(), *at)
	}
	if want.ReasonContains != "" && !strings.Contains(got.Reason, want.ReasonContains) {
		t.Errorf("%s reason %q lacks %q", id, got.Reason, want.ReasonContains)
	}
	if want.Unchanged {
		if before == nil {
			t.Errorf("%s has no earlier schedule", id)
			return
		}
		if got.Status != before.Status || got.DelayMinutes != before.DelayMinutes || len(got.Segments) != len(before.Segments) {
			t.Errorf("%s changed: before %+v after %+v", id, before, got)
			return
		}
		for i := range got.Segments {
			if !got.Segments[i].Start.Equal(before.Segments[i].Start) || !got.Segments[i].End.Equal(before.Segments[i].End) {
				t.Errorf("%s segment %d moved", id, i)
			}
		}
	}
}
