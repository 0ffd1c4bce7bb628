package events

import "time"

// DisruptionEvent is emitted when an event is applied to the current
// schedule or marked resolved. Action is "applied" or "resolved".
type DisruptionEvent struct {
	EventID  string
	Kind     string
	Action   string
	Affected int
	Cascaded int
	Residual int
	At       time.Time
}

const (
	ActionApplied  = "applied"
	ActionResolved = "resolved"
)
