package optimizer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
	"github.com/kilianp07/railsched/core/scheduler"
)

const (
	// epsilon is the LP cost of a start minute, so slack segments without a
	// stability price run at their earliest.
	epsilon = 1e-3
	// arrivalFactor scales the train weight for minutes of late arrival.
	// Departure delay stays the dominant term.
	arrivalFactor = 0.5
)

// variable is the start of one segment, in seconds from the epoch.
type variable struct {
	train  string
	seg    model.Segment
	dur    int64
	travel int64
	// stopEnd is the offset from the segment start at which the arrival
	// platform is released.
	stopEnd int64
	lb      int64
}

// arc encodes x[to] >= x[from] + lag.
type arc struct {
	from, to int
	lag      int64
}

type train struct {
	id     string
	weight float64
	// arrival is the scheduled arrival in seconds from the epoch.
	arrival int64
	vars    []int
}

// formulation is the difference-constraint model of a schedule. Only the
// per-track sequences change during the search.
type formulation struct {
	epoch     time.Time
	horizon   int64
	headway   int64
	stability float64
	// base holds the baseline start of every variable.
	base     []int64
	vars     []variable
	fixed    []arc
	trains   []train
	trackIDs []string
}

type sequences map[string][]int

func seconds(d time.Duration) int64 { return int64(d / time.Second) }

// formulate builds the model from the baseline and returns it with the
// baseline track sequences.
func formulate(p Problem, cfg Config) (*formulation, sequences, error) {
	base := p.Baseline
	ids := base.TrainIDs()
	var earliest time.Time
	maxPrio := 0
	for _, id := range ids {
		ts := base.Trains[id]
		if ts.Status == model.StatusCancelled || len(ts.Segments) == 0 {
			continue
		}
		if earliest.IsZero() || ts.ScheduledDeparture.Before(earliest) {
			earliest = ts.ScheduledDeparture
		}
		if ts.Priority > maxPrio {
			maxPrio = ts.Priority
		}
	}
	f := &formulation{
		horizon:   seconds(time.Duration(cfg.HorizonHours) * time.Hour),
		headway:   seconds(time.Duration(cfg.HeadwayMinutes) * time.Minute),
		stability: cfg.stability(),
	}
	if earliest.IsZero() {
		return f, sequences{}, nil
	}
	earliest = earliest.UTC()
	f.epoch = time.Date(earliest.Year(), earliest.Month(), earliest.Day(), 0, 0, 0, 0, time.UTC)

	seq := make(sequences)
	for _, id := range ids {
		ts := base.Trains[id]
		if ts.Status == model.StatusCancelled || len(ts.Segments) == 0 {
			continue
		}
		tr := train{id: id, weight: float64(maxPrio + 1 - ts.Priority), arrival: seconds(ts.ScheduledArrival.Sub(f.epoch))}
		lb := seconds(ts.ScheduledDeparture.Sub(f.epoch))
		for k, seg := range ts.Segments {
			dur := seconds(seg.End.Sub(seg.Start))
			v := variable{train: id, seg: seg, dur: dur, travel: dur - seconds(seg.Dwell), stopEnd: dur, lb: lb}
			if seg.Dwell <= 0 {
				v.stopEnd = dur + seconds(model.BaseDwell(ts.Class))
			}
			idx := len(f.vars)
			f.vars = append(f.vars, v)
			tr.vars = append(tr.vars, idx)
			seq[seg.TrackID] = append(seq[seg.TrackID], idx)
			if k > 0 {
				prev := idx - 1
				f.fixed = append(f.fixed, arc{from: prev, to: idx, lag: f.vars[prev].dur})
			}
		}
		f.trains = append(f.trains, tr)
	}
	for track, s := range seq {
		sort.SliceStable(s, func(i, j int) bool {
			a, b := f.vars[s[i]], f.vars[s[j]]
			if !a.seg.Start.Equal(b.seg.Start) {
				return a.seg.Start.Before(b.seg.Start)
			}
			return a.train < b.train
		})
		f.trackIDs = append(f.trackIDs, track)
	}
	sort.Strings(f.trackIDs)
	f.base = f.baselineStarts()

	arcs, err := f.platformArcs(p.Network, scheduler.RouteUsage(p.Trains))
	if err != nil {
		return nil, nil, err
	}
	f.fixed = append(f.fixed, arcs...)
	return f, seq, nil
}

type stopRef struct {
	v          int
	start, end time.Time
}

// platformArcs assigns the baseline stops of each constrained station to
// platforms by interval colouring and chains the stops of each platform.
func (f *formulation) platformArcs(net *network.Network, usage map[string]int) ([]arc, error) {
	byStation := make(map[string][]stopRef)
	for i, v := range f.vars {
		st := v.seg.Start.Add(time.Duration(v.travel) * time.Second)
		byStation[v.seg.To] = append(byStation[v.seg.To], stopRef{v: i, start: st, end: v.seg.Start.Add(time.Duration(v.stopEnd) * time.Second)})
	}
	codes := make([]string, 0, len(byStation))
	for code := range byStation {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []arc
	for _, code := range codes {
		capacity, err := net.PlatformCapacity(code)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", code, err)
		}
		if usage[code] <= capacity {
			continue
		}
		stops := byStation[code]
		sort.SliceStable(stops, func(i, j int) bool { return stops[i].start.Before(stops[j].start) })
		var platforms [][]stopRef
		for _, s := range stops {
			best := -1
			for p, list := range platforms {
				last := list[len(list)-1]
				if last.end.After(s.start) {
					continue
				}
				if best < 0 || last.end.After(platforms[best][len(platforms[best])-1].end) {
					best = p
				}
			}
			if best < 0 {
				if len(platforms) == capacity {
					return nil, fmt.Errorf("%w: baseline exceeds %d platforms at %s", ErrInfeasible, capacity, code)
				}
				platforms = append(platforms, nil)
				best = len(platforms) - 1
			}
			platforms[best] = append(platforms[best], s)
		}
		for _, list := range platforms {
			for i := 1; i < len(list); i++ {
				a, b := f.vars[list[i-1].v], f.vars[list[i].v]
				out = append(out, arc{from: list[i-1].v, to: list[i].v, lag: a.stopEnd - b.travel})
			}
		}
	}
	return out, nil
}

// arcs returns the fixed arcs plus the track arcs implied by seq.
func (f *formulation) arcs(seq sequences) []arc {
	out := append([]arc(nil), f.fixed...)
	for _, track := range f.trackIDs {
		s := seq[track]
		for i := 1; i < len(s); i++ {
			out = append(out, arc{from: s[i-1], to: s[i], lag: f.vars[s[i-1]].dur + f.headway})
		}
	}
	return out
}

// propagate computes the earliest start of every segment under the given
// sequences with lower bounds lb. It reports false when the arcs contain a
// cycle or the horizon is exceeded.
func (f *formulation) propagate(seq sequences, lb []int64) ([]int64, bool) {
	g := simple.NewDirectedGraph()
	for i := range f.vars {
		g.AddNode(simple.Node(int64(i)))
	}
	preds := make([][]arc, len(f.vars))
	for _, a := range f.arcs(seq) {
		if a.from == a.to {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(int64(a.from)), simple.Node(int64(a.to))))
		preds[a.to] = append(preds[a.to], a)
	}
	order, err := topo.Sort(g)
	if err != nil {
		return nil, false
	}
	x := make([]int64, len(f.vars))
	for _, n := range order {
		v := int(n.ID())
		x[v] = lb[v]
		for _, a := range preds[v] {
			if t := x[a.from] + a.lag; t > x[v] {
				x[v] = t
			}
		}
		if x[v]+f.vars[v].dur > f.horizon {
			return nil, false
		}
	}
	return x, true
}

func (f *formulation) lowerBounds() []int64 {
	lb := make([]int64, len(f.vars))
	for i, v := range f.vars {
		lb[i] = v.lb
	}
	return lb
}

// objective is expressed in minutes. Each train pays its weight for late
// departure and half of it for late arrival against the timetable. Every
// segment pays the stability weight for each minute it moved from the
// baseline.
func (f *formulation) objective(x []int64) float64 {
	var obj float64
	for _, t := range f.trains {
		first, last := t.vars[0], t.vars[len(t.vars)-1]
		obj += t.weight * float64(x[first]-f.vars[first].lb) / 60
		if late := x[last] + f.vars[last].dur - t.arrival; late > 0 {
			obj += arrivalFactor * t.weight * float64(late) / 60
		}
	}
	if f.stability > 0 {
		for i, b := range f.base {
			obj += f.stability * math.Abs(float64(x[i]-b)) / 60
		}
	}
	return obj
}

// baselineStarts returns the baseline start of every variable.
func (f *formulation) baselineStarts() []int64 {
	x := make([]int64, len(f.vars))
	for i, v := range f.vars {
		x[i] = seconds(v.seg.Start.Sub(f.epoch))
	}
	return x
}
