package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/railsched/core/events"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/internal/eventbus"
)

type recordingSink struct {
	mu   sync.Mutex
	opts []coremetrics.OptimizationRun
	disr []coremetrics.DisruptionRecord
}

func (r *recordingSink) RecordKPIs(coremetrics.KPISnapshot) error { return nil }

func (r *recordingSink) RecordOptimization(run coremetrics.OptimizationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = append(r.opts, run)
	return nil
}

func (r *recordingSink) RecordDisruption(rec coremetrics.DisruptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disr = append(r.disr, rec)
	return nil
}

func TestEventCollectorForwardsEvents(t *testing.T) {
	bus := eventbus.New()
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := StartEventCollector(ctx, bus, sink)

	bus.Publish(events.ScheduleEvent{ScheduleID: "s1"})
	bus.Publish(events.OptimizationEvent{ScheduleID: "s1", Solver: "lp", Err: errors.New("timeout")})
	bus.Publish(events.DisruptionEvent{EventID: "E1", Kind: "delay", Action: events.ActionApplied, Affected: 2})
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after bus close")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.opts) != 1 || sink.opts[0].Error != "timeout" || sink.opts[0].Accepted {
		t.Fatalf("unexpected optimization records %+v", sink.opts)
	}
	if len(sink.disr) != 1 || sink.disr[0].Affected != 2 || sink.disr[0].Time.IsZero() {
		t.Fatalf("unexpected disruption records %+v", sink.disr)
	}
}

func TestEventCollectorNilInputs(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, coremetrics.NopSink{})
	select {
	case <-done:
	default:
		t.Fatal("expected closed channel for nil bus")
	}
}
