// Package timeline keeps the occupancy of tracks and station platforms during
// a scheduling run. A timeline is not shared between runs.
package timeline

import (
	"sort"
	"time"
)

const (
	DefaultTrackBuffer    = 15 * time.Minute
	DefaultPlatformBuffer = 5 * time.Minute
)

// Interval is one reservation of a resource by a train.
type Interval struct {
	Start   time.Time
	End     time.Time
	TrainID string
}

func (iv Interval) conflicts(start, end time.Time, buffer time.Duration) bool {
	return start.Before(iv.End.Add(buffer)) && end.Add(buffer).After(iv.Start)
}

// Timeline is the reservation ledger. The zero value is not usable; call New.
type Timeline struct {
	tracks   map[string][]Interval
	stations map[string][]Interval
}

// New returns an empty Timeline.
func New() *Timeline {
	return &Timeline{tracks: make(map[string][]Interval), stations: make(map[string][]Interval)}
}

// IsAvailable reports whether [start,end) fits on the track with buffer on
// both sides of every existing reservation.
func (t *Timeline) IsAvailable(track string, start, end time.Time, buffer time.Duration) bool {
	for _, iv := range t.tracks[track] {
		if iv.conflicts(start, end, buffer) {
			return false
		}
	}
	return true
}

// EarliestAvailableStart returns the first start not before desired at which
// an occupation of length d fits on the track.
func (t *Timeline) EarliestAvailableStart(track string, desired time.Time, d, buffer time.Duration) time.Time {
	start := desired
	res := t.tracks[track]
	for i := 0; i <= len(res); i++ {
		end := start.Add(d)
		var latest time.Time
		found := false
		for _, iv := range res {
			if iv.conflicts(start, end, buffer) && (!found || iv.End.After(latest)) {
				latest = iv.End
				found = true
			}
		}
		if !found {
			return start
		}
		start = latest.Add(buffer)
	}
	return t.Latest(track).Add(buffer)
}

// Reserve records an occupation of the track. It never rejects.
func (t *Timeline) Reserve(track string, start, end time.Time, train string) {
	t.tracks[track] = insert(t.tracks[track], Interval{Start: start, End: end, TrainID: train})
}

// Overlapping counts the reservations of the track that conflict with
// [start,end) under buffer.
func (t *Timeline) Overlapping(track string, start, end time.Time, buffer time.Duration) int {
	n := 0
	for _, iv := range t.tracks[track] {
		if iv.conflicts(start, end, buffer) {
			n++
		}
	}
	return n
}

// Reservations returns a copy of the track reservations ordered by start.
func (t *Timeline) Reservations(track string) []Interval {
	return append([]Interval(nil), t.tracks[track]...)
}

// Latest returns the latest end on the track, or the zero time when empty.
func (t *Timeline) Latest(track string) time.Time {
	return latest(t.tracks[track])
}

// PlatformAvailable reports whether a stop over [start,end) keeps the number
// of concurrent stops at the station below capacity.
func (t *Timeline) PlatformAvailable(station string, start, end time.Time, buffer time.Duration, capacity int) bool {
	n := 0
	for _, iv := range t.stations[station] {
		if iv.conflicts(start, end, buffer) {
			n++
		}
	}
	return n < capacity
}

// EarliestPlatformStart returns the first start not before desired at which a
// stop of length d fits at the station.
func (t *Timeline) EarliestPlatformStart(station string, desired time.Time, d, buffer time.Duration, capacity int) time.Time {
	start := desired
	res := t.stations[station]
	for i := 0; i <= len(res); i++ {
		end := start.Add(d)
		n := 0
		var first time.Time
		for _, iv := range res {
			if !iv.conflicts(start, end, buffer) {
				continue
			}
			if n == 0 || iv.End.Before(first) {
				first = iv.End
			}
			n++
		}
		if n < capacity {
			return start
		}
		// the earliest release frees one platform
		start = first.Add(buffer)
	}
	return latest(res).Add(buffer)
}

// ReservePlatform records a stop at the station.
func (t *Timeline) ReservePlatform(station string, start, end time.Time, train string) {
	t.stations[station] = insert(t.stations[station], Interval{Start: start, End: end, TrainID: train})
}

// LatestStop returns the latest stop end at the station.
func (t *Timeline) LatestStop(station string) time.Time {
	return latest(t.stations[station])
}

// Stops returns a copy of the stops recorded at the station.
func (t *Timeline) Stops(station string) []Interval {
	return append([]Interval(nil), t.stations[station]...)
}

func insert(list []Interval, iv Interval) []Interval {
	i := sort.Search(len(list), func(i int) bool { return list[i].Start.After(iv.Start) })
	list = append(list, Interval{})
	copy(list[i+1:], list[i:])
	list[i] = iv
	return list
}

func latest(list []Interval) time.Time {
	var out time.Time
	for _, iv := range list {
		if iv.End.After(out) {
			out = iv.End
		}
	}
	return out
}
