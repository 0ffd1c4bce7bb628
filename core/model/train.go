package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TrainClass groups trains for dwell times and reporting.
type TrainClass string

const (
	ClassPassenger TrainClass = "passenger"
	ClassExpress   TrainClass = "express"
	ClassFreight   TrainClass = "freight"
)

// ClassForPriority maps a priority value to its reporting class:
// 1 is passenger, 2 is express and everything else is freight.
func ClassForPriority(priority int) TrainClass {
	switch priority {
	case 1:
		return ClassPassenger
	case 2:
		return ClassExpress
	default:
		return ClassFreight
	}
}

// Train is a service to be scheduled over the network. Priority is fixed at
// creation; a lower value means a more important train.
type Train struct {
	ID                 string     `json:"id" yaml:"id"`
	Name               string     `json:"name,omitempty" yaml:"name,omitempty"`
	Class              TrainClass `json:"class,omitempty" yaml:"class,omitempty"`
	Priority           int        `json:"priority" yaml:"priority"`
	Route              []string   `json:"route" yaml:"route"`
	ScheduledDeparture time.Time  `json:"scheduled_departure" yaml:"scheduled_departure"`
	ScheduledArrival   time.Time  `json:"scheduled_arrival" yaml:"scheduled_arrival"`
	SpeedKmh           float64    `json:"speed_kmh" yaml:"speed_kmh"`
}

// ErrInvalidTrain is returned by Validate.
var ErrInvalidTrain = errors.New("invalid train")

// Validate checks the static properties of a train.
func (t Train) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidTrain)
	case len(t.Route) < 2:
		return fmt.Errorf("%w: %s: route needs at least two stations", ErrInvalidTrain, t.ID)
	case t.SpeedKmh <= 0:
		return fmt.Errorf("%w: %s: speed must be positive", ErrInvalidTrain, t.ID)
	case t.Priority < 0:
		return fmt.Errorf("%w: %s: priority must not be negative", ErrInvalidTrain, t.ID)
	case t.ScheduledDeparture.IsZero():
		return fmt.Errorf("%w: %s: missing scheduled departure", ErrInvalidTrain, t.ID)
	case t.ScheduledArrival.Before(t.ScheduledDeparture):
		return fmt.Errorf("%w: %s: arrival before departure", ErrInvalidTrain, t.ID)
	}
	switch t.Class {
	case "", ClassPassenger, ClassExpress, ClassFreight:
	default:
		return fmt.Errorf("%w: %s: unknown class %q", ErrInvalidTrain, t.ID, t.Class)
	}
	return nil
}

// EffectiveClass returns the declared class or the one implied by priority.
func (t Train) EffectiveClass() TrainClass {
	if t.Class != "" {
		return t.Class
	}
	return ClassForPriority(t.Priority)
}

// Source is the first station of the route.
func (t Train) Source() string { return t.Route[0] }

// Destination is the last station of the route.
func (t Train) Destination() string { return t.Route[len(t.Route)-1] }

// TravelTime returns the running time over a track, limited by the slower of
// the train and the line speed, rounded to whole seconds.
func TravelTime(tr Track, speedKmh float64) time.Duration {
	speed := math.Min(speedKmh, tr.MaxSpeedKmh)
	if speed <= 0 {
		return 0
	}
	minutes := tr.DistanceKm / speed * 60
	return time.Duration(math.Round(minutes*60)) * time.Second
}

// BaseDwell is the standard stop length for a class.
func BaseDwell(c TrainClass) time.Duration {
	switch c {
	case ClassExpress:
		return time.Minute
	case ClassFreight:
		return 5 * time.Minute
	default:
		return 2 * time.Minute
	}
}

// DwellTime returns the stop length at the arrival station of a hop. The final
// hop has no dwell.
func DwellTime(c TrainClass, st Station, final bool) time.Duration {
	if final {
		return 0
	}
	d := BaseDwell(c)
	if st.IsTerminus {
		d += 3 * time.Minute
	}
	if st.Platforms > 6 {
		d += time.Minute
	}
	return d
}
