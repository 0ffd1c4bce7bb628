package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
)

// Violation kinds reported by Validate.
const (
	ViolationTrackOverlap     = "track_overlap"
	ViolationPlatformCapacity = "platform_capacity"
	ViolationUnknownTrack     = "unknown_track"
	ViolationNegativeDelay    = "negative_delay"
	ViolationDiscontinuity    = "discontinuity"
)

// Violation describes a broken schedule invariant.
type Violation struct {
	Kind     string
	Resource string
	Trains   []string
	At       time.Time
}

func (v Violation) String() string {
	return fmt.Sprintf("%s on %s at %s (%s)", v.Kind, v.Resource, v.At.Format(time.RFC3339), strings.Join(v.Trains, ","))
}

// Validate checks a schedule against the network with the given buffers.
// Cancelled trains hold no resources and are ignored for occupancy.
func Validate(s *model.Schedule, net *network.Network, b Buffers) []Violation {
	var out []Violation
	usage := make(map[string]int)
	for _, id := range s.TrainIDs() {
		ts := s.Trains[id]
		if ts.DelayMinutes < 0 {
			out = append(out, Violation{Kind: ViolationNegativeDelay, Resource: id, Trains: []string{id}, At: ts.FinalArrival})
		}
		visited := make(map[string]bool)
		for i, seg := range ts.Segments {
			tr, ok := net.Track(seg.TrackID)
			if !ok || tr.From != seg.From || tr.To != seg.To {
				out = append(out, Violation{Kind: ViolationUnknownTrack, Resource: seg.TrackID, Trains: []string{id}, At: seg.Start})
			}
			if i > 0 && seg.Start.Before(ts.Segments[i-1].End) {
				out = append(out, Violation{Kind: ViolationDiscontinuity, Resource: seg.TrackID, Trains: []string{id}, At: seg.Start})
			}
			visited[seg.From] = true
			visited[seg.To] = true
		}
		for code := range visited {
			usage[code]++
		}
	}
	for _, c := range s.Conflicts(b.Track) {
		out = append(out, Violation{Kind: ViolationTrackOverlap, Resource: c.TrackID, Trains: []string{c.TrainA, c.TrainB}, At: c.Start})
	}
	out = append(out, platformViolations(s, net, usage, b.Platform)...)
	return out
}

type sweepEvent struct {
	at    time.Time
	delta int
	train string
}

// platformViolations sweeps the stops of every constrained station. A stop
// holds its platform until end+buffer, so the stops active at one instant are
// exactly a set of pairwise conflicting stops.
func platformViolations(s *model.Schedule, net *network.Network, usage map[string]int, buffer time.Duration) []Violation {
	byStation := make(map[string][]model.Stop)
	for _, id := range s.TrainIDs() {
		ts := s.Trains[id]
		if ts.Status == model.StatusCancelled {
			continue
		}
		for _, st := range ts.Stops() {
			byStation[st.Station] = append(byStation[st.Station], st)
		}
	}
	codes := make([]string, 0, len(byStation))
	for code := range byStation {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []Violation
	for _, code := range codes {
		capacity, err := net.PlatformCapacity(code)
		if err != nil || usage[code] <= capacity {
			continue
		}
		var evs []sweepEvent
		for _, st := range byStation[code] {
			evs = append(evs, sweepEvent{at: st.Start, delta: 1, train: st.TrainID})
			evs = append(evs, sweepEvent{at: st.End.Add(buffer), delta: -1, train: st.TrainID})
		}
		sort.Slice(evs, func(i, j int) bool {
			if !evs[i].at.Equal(evs[j].at) {
				return evs[i].at.Before(evs[j].at)
			}
			return evs[i].delta < evs[j].delta
		})
		active := make(map[string]int)
		n := 0
		for _, ev := range evs {
			n += ev.delta
			active[ev.train] += ev.delta
			if ev.delta > 0 && n > capacity {
				out = append(out, Violation{Kind: ViolationPlatformCapacity, Resource: code, Trains: activeTrains(active), At: ev.at})
			}
		}
	}
	return out
}

func activeTrains(active map[string]int) []string {
	var out []string
	for id, n := range active {
		if n > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
