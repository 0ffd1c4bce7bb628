package disruption

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidEvent is returned when a spec cannot form an event.
	ErrInvalidEvent = errors.New("invalid disruption event")
	// ErrDuplicateEvent is returned when an event id is already registered.
	ErrDuplicateEvent = errors.New("duplicate disruption event")
	// ErrUnknownEvent is returned when an event id is not registered.
	ErrUnknownEvent = errors.New("unknown disruption event")
)

// Kind names a disruption variant.
type Kind string

const (
	KindDelay       Kind = "delay"
	KindBreakdown   Kind = "breakdown"
	KindObstruction Kind = "obstruction"
	KindWeather     Kind = "weather"
	KindGeneric     Kind = "generic"
)

// Severity grades breakdown and weather events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Default durations in minutes.
const (
	DefaultDelayMinutes       = 30
	DefaultObstructionMinutes = 60
)

// Spec is the external shape of a disruption report.
type Spec struct {
	EventID                 string   `json:"event_id" yaml:"event_id"`
	Type                    string   `json:"type" yaml:"type"`
	AffectedTrains          []string `json:"affected_trains,omitempty" yaml:"affected_trains,omitempty"`
	AffectedTracks          []string `json:"affected_tracks,omitempty" yaml:"affected_tracks,omitempty"`
	Severity                Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	ExpectedDurationMinutes *int     `json:"expected_duration_minutes,omitempty" yaml:"expected_duration_minutes,omitempty"`
}

// Disruption is one of TrainDelay, Breakdown, Obstruction, Weather or Generic.
type Disruption interface {
	Kind() Kind
	// Trains lists the trains named by the event, if any.
	Trains() []string
}

type TrainDelay struct {
	TrainIDs []string
	Minutes  int
}

type Breakdown struct {
	TrainIDs []string
	Severity Severity
}

type Obstruction struct {
	TrackIDs []string
	Minutes  int
}

type Weather struct {
	Severity Severity
}

// Generic covers event types without dedicated handling. It behaves like a
// delay.
type Generic struct {
	TrainIDs []string
	Minutes  int
	RawType  string
}

func (TrainDelay) Kind() Kind  { return KindDelay }
func (Breakdown) Kind() Kind   { return KindBreakdown }
func (Obstruction) Kind() Kind { return KindObstruction }
func (Weather) Kind() Kind     { return KindWeather }
func (Generic) Kind() Kind     { return KindGeneric }

func (d TrainDelay) Trains() []string { return d.TrainIDs }
func (d Breakdown) Trains() []string  { return d.TrainIDs }
func (Obstruction) Trains() []string  { return nil }
func (Weather) Trains() []string      { return nil }
func (d Generic) Trains() []string    { return d.TrainIDs }

// Status is the lifecycle state of a registered event.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Event is a validated disruption with its lifecycle.
type Event struct {
	ID         string     `json:"event_id"`
	Disruption Disruption `json:"-"`
	Spec       Spec       `json:"spec"`
	IssuedAt   time.Time  `json:"timestamp"`
	Status     Status     `json:"status"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (e Event) Kind() Kind { return e.Disruption.Kind() }

// NewEvent validates spec and builds the matching variant. Unknown types are
// accepted as Generic.
func NewEvent(spec Spec, now time.Time) (Event, error) {
	if strings.TrimSpace(spec.EventID) == "" {
		return Event{}, fmt.Errorf("%w: missing event_id", ErrInvalidEvent)
	}
	if spec.ExpectedDurationMinutes != nil && *spec.ExpectedDurationMinutes < 0 {
		return Event{}, fmt.Errorf("%w: %s: negative duration", ErrInvalidEvent, spec.EventID)
	}
	switch spec.Severity {
	case "", SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	default:
		return Event{}, fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidEvent, spec.EventID, spec.Severity)
	}
	minutes := func(def int) int {
		if spec.ExpectedDurationMinutes == nil {
			return def
		}
		return *spec.ExpectedDurationMinutes
	}
	trains := append([]string(nil), spec.AffectedTrains...)

	var d Disruption
	switch Kind(strings.ToLower(spec.Type)) {
	case KindDelay:
		if len(trains) == 0 {
			return Event{}, fmt.Errorf("%w: %s: delay needs affected trains", ErrInvalidEvent, spec.EventID)
		}
		d = TrainDelay{TrainIDs: trains, Minutes: minutes(DefaultDelayMinutes)}
	case KindBreakdown:
		if len(trains) == 0 {
			return Event{}, fmt.Errorf("%w: %s: breakdown needs affected trains", ErrInvalidEvent, spec.EventID)
		}
		d = Breakdown{TrainIDs: trains, Severity: spec.Severity}
	case KindObstruction:
		if len(spec.AffectedTracks) == 0 {
			return Event{}, fmt.Errorf("%w: %s: obstruction needs affected tracks", ErrInvalidEvent, spec.EventID)
		}
		d = Obstruction{TrackIDs: append([]string(nil), spec.AffectedTracks...), Minutes: minutes(DefaultObstructionMinutes)}
	case KindWeather:
		sev := spec.Severity
		if sev == "" {
			sev = SeverityMedium
		}
		d = Weather{Severity: sev}
	default:
		d = Generic{TrainIDs: trains, Minutes: minutes(DefaultDelayMinutes), RawType: spec.Type}
	}
	return Event{ID: spec.EventID, Disruption: d, Spec: spec, IssuedAt: now, Status: StatusActive}, nil
}
