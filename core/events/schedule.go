package events

import "time"

// ScheduleEvent is published when a generated schedule becomes current.
type ScheduleEvent struct {
	ScheduleID string
	Source     string
	Trains     int
	Incomplete int
	At         time.Time
}
