package model

import (
	"sort"
	"time"
)

// Status is the operational state of a scheduled train.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusDelayed   Status = "delayed"
	StatusCancelled Status = "cancelled"
)

// Source records which component produced a schedule.
type Source string

const (
	SourceBaseline  Source = "baseline"
	SourceOptimized Source = "optimized"
)

// Segment is one hop of a train on a specific track. End includes the dwell at
// the arrival station.
type Segment struct {
	TrainID string        `json:"train_id"`
	TrackID string        `json:"track"`
	From    string        `json:"from"`
	To      string        `json:"to"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Dwell   time.Duration `json:"dwell"`
}

// Overlaps reports whether both segments occupy their track at the same time
// once buffer is added to either boundary.
func (s Segment) Overlaps(o Segment, buffer time.Duration) bool {
	return s.Start.Before(o.End.Add(buffer)) && s.End.Add(buffer).After(o.Start)
}

// Hop is a pair of consecutive route stations.
type Hop struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TrainSchedule is the timetable of one train.
type TrainSchedule struct {
	TrainID            string     `json:"train_id"`
	Priority           int        `json:"priority"`
	Class              TrainClass `json:"class"`
	ScheduledDeparture time.Time  `json:"scheduled_departure"`
	ScheduledArrival   time.Time  `json:"scheduled_arrival"`
	Segments           []Segment  `json:"segments"`
	FinalArrival       time.Time  `json:"final_arrival"`
	DelayMinutes       float64    `json:"delay_minutes"`
	Status             Status     `json:"status"`
	Reason             string     `json:"reason,omitempty"`
	Incomplete         bool       `json:"incomplete,omitempty"`
	SkippedHops        []Hop      `json:"skipped_hops,omitempty"`
}

// Departure returns the start of the first segment, or the scheduled
// departure when the train has no segment.
func (ts *TrainSchedule) Departure() time.Time {
	if len(ts.Segments) == 0 {
		return ts.ScheduledDeparture
	}
	return ts.Segments[0].Start
}

// Shift moves every segment and the final arrival by d.
func (ts *TrainSchedule) Shift(d time.Duration) {
	for i := range ts.Segments {
		ts.Segments[i].Start = ts.Segments[i].Start.Add(d)
		ts.Segments[i].End = ts.Segments[i].End.Add(d)
	}
	ts.FinalArrival = ts.FinalArrival.Add(d)
}

// Clone returns a deep copy.
func (ts *TrainSchedule) Clone() *TrainSchedule {
	cp := *ts
	cp.Segments = append([]Segment(nil), ts.Segments...)
	cp.SkippedHops = append([]Hop(nil), ts.SkippedHops...)
	return &cp
}

// Stop is the platform occupancy of a train at a station.
type Stop struct {
	Station string
	TrainID string
	Start   time.Time
	End     time.Time
}

// Stops derives platform occupancy from the segments. An intermediate stop
// lasts for the dwell of the arriving segment and the final stop lasts for the
// base dwell of the class. Waiting longer than the dwell happens off-platform.
// The origin is not counted.
func (ts *TrainSchedule) Stops() []Stop {
	out := make([]Stop, 0, len(ts.Segments))
	for _, seg := range ts.Segments {
		st := Stop{Station: seg.To, TrainID: ts.TrainID}
		if seg.Dwell <= 0 {
			// only the final hop runs without dwell
			st.Start = seg.End
			st.End = seg.End.Add(BaseDwell(ts.Class))
		} else {
			st.Start = seg.End.Add(-seg.Dwell)
			st.End = seg.End
		}
		out = append(out, st)
	}
	return out
}

// Schedule maps train ids to their timetable.
type Schedule struct {
	ID          string                    `json:"id"`
	Source      Source                    `json:"source"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Trains      map[string]*TrainSchedule `json:"trains"`
}

// NewSchedule returns an empty schedule.
func NewSchedule(id string, src Source, at time.Time) *Schedule {
	return &Schedule{ID: id, Source: src, GeneratedAt: at, Trains: make(map[string]*TrainSchedule)}
}

// Clone returns a deep copy that can be mutated freely.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	cp := &Schedule{ID: s.ID, Source: s.Source, GeneratedAt: s.GeneratedAt, Trains: make(map[string]*TrainSchedule, len(s.Trains))}
	for id, ts := range s.Trains {
		cp.Trains[id] = ts.Clone()
	}
	return cp
}

// TrainIDs returns the train ids in lexical order.
func (s *Schedule) TrainIDs() []string {
	ids := make([]string, 0, len(s.Trains))
	for id := range s.Trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SegmentsByTrack groups the segments of non-cancelled trains by track,
// each group sorted by start time.
func (s *Schedule) SegmentsByTrack() map[string][]Segment {
	out := make(map[string][]Segment)
	for _, id := range s.TrainIDs() {
		ts := s.Trains[id]
		if ts.Status == StatusCancelled {
			continue
		}
		for _, seg := range ts.Segments {
			out[seg.TrackID] = append(out[seg.TrackID], seg)
		}
	}
	for _, segs := range out {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start.Before(segs[j].Start) })
	}
	return out
}

// Conflict is a pair of trains whose occupations of a track overlap.
type Conflict struct {
	TrackID string    `json:"track"`
	TrainA  string    `json:"train_a"`
	TrainB  string    `json:"train_b"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Key identifies the conflict independently of its times.
func (c Conflict) Key() string {
	a, b := c.TrainA, c.TrainB
	if b < a {
		a, b = b, a
	}
	return c.TrackID + "|" + a + "|" + b
}

// Conflicts lists every pair of non-cancelled trains overlapping on a track
// with the given buffer. Pairs are reported once per track.
func (s *Schedule) Conflicts(buffer time.Duration) []Conflict {
	var out []Conflict
	seen := make(map[string]bool)
	byTrack := s.SegmentsByTrack()
	tracks := make([]string, 0, len(byTrack))
	for id := range byTrack {
		tracks = append(tracks, id)
	}
	sort.Strings(tracks)
	for _, track := range tracks {
		segs := byTrack[track]
		for i := 0; i < len(segs); i++ {
			for j := i + 1; j < len(segs); j++ {
				a, b := segs[i], segs[j]
				if !b.Start.Before(a.End.Add(buffer)) {
					break
				}
				if a.TrainID == b.TrainID || !a.Overlaps(b, buffer) {
					continue
				}
				c := Conflict{TrackID: track, TrainA: a.TrainID, TrainB: b.TrainID, Start: b.Start, End: a.End}
				if seen[c.Key()] {
					continue
				}
				seen[c.Key()] = true
				out = append(out, c)
			}
		}
	}
	return out
}
