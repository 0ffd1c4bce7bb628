package events

import "time"

// OptimizationEvent reports one optimizer run. Accepted is false when the
// baseline was kept, in which case Err carries the reason.
type OptimizationEvent struct {
	ScheduleID      string
	Solver          string
	ObjectiveBefore float64
	ObjectiveAfter  float64
	Iterations      int
	Swaps           int
	Duration        time.Duration
	Accepted        bool
	Err             error
}
