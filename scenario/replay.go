package scenario

import (
	"context"
	"time"

	"github.com/kilianp07/railsched/core/disruption"
	"github.com/kilianp07/railsched/core/logger"
	"github.com/kilianp07/railsched/core/monitoring"
)

// Applier receives replayed disruptions. *engine.Engine satisfies it.
type Applier interface {
	ApplyDisruption(ctx context.Context, spec disruption.Spec) (disruption.Outcome, error)
}

// Replay applies the disruptions of sc at their offsets from the call time.
// Speed compresses the timeline: 2 replays twice as fast, zero or less
// applies everything immediately. Rejected events are logged and skipped.
// It returns the outcomes of the accepted events, or ctx.Err() when
// cancelled before the end.
func Replay(ctx context.Context, app Applier, sc *Scenario, speed float64, log logger.Logger) ([]disruption.Outcome, error) {
	log = logger.OrDiscard(log)
	start := time.Now()
	var out []disruption.Outcome
	for _, d := range sc.Disruptions {
		if speed > 0 {
			due := start.Add(time.Duration(float64(d.After()) / speed))
			if wait := time.Until(due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return out, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o, err := app.ApplyDisruption(ctx, d.Spec)
		if err != nil {
			log.Warnf("replay %s: %v", d.EventID, err)
			monitoring.CaptureException(err, map[string]string{"stage": "replay", "event_id": d.EventID})
			continue
		}
		log.Infof("replayed %s: %d affected, %d cascaded", d.EventID, len(o.Affected), len(o.Cascaded))
		out = append(out, o)
	}
	return out, nil
}
