package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/railsched/core/events"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards optimizer and
// disruption events to the sink recorders. It stops when the context is
// canceled or the bus is closed. The returned channel is closed on exit.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.OptimizationEvent:
		if r, ok := sink.(coremetrics.OptimizationRecorder); ok {
			errStr := ""
			if e.Err != nil {
				errStr = e.Err.Error()
			}
			_ = r.RecordOptimization(coremetrics.OptimizationRun{
				ScheduleID:      e.ScheduleID,
				Solver:          e.Solver,
				ObjectiveBefore: e.ObjectiveBefore,
				ObjectiveAfter:  e.ObjectiveAfter,
				Iterations:      e.Iterations,
				Swaps:           e.Swaps,
				Duration:        e.Duration,
				Accepted:        e.Accepted,
				Error:           errStr,
				Time:            time.Now(),
			})
		}
	case events.DisruptionEvent:
		if r, ok := sink.(coremetrics.DisruptionRecorder); ok {
			at := e.At
			if at.IsZero() {
				at = time.Now()
			}
			_ = r.RecordDisruption(coremetrics.DisruptionRecord{
				EventID:  e.EventID,
				Kind:     e.Kind,
				Action:   e.Action,
				Affected: e.Affected,
				Cascaded: e.Cascaded,
				Residual: e.Residual,
				Time:     at,
			})
		}
	}
}
