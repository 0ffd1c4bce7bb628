package scheduler

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/railsched/core/logger"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
	"github.com/kilianp07/railsched/core/timeline"
)

// Buffers are the separations enforced between reservations.
type Buffers struct {
	Track    time.Duration
	Platform time.Duration
}

// DefaultBuffers returns the standard baseline separations.
func DefaultBuffers() Buffers {
	return Buffers{Track: timeline.DefaultTrackBuffer, Platform: timeline.DefaultPlatformBuffer}
}

// Scheduler generates the greedy baseline timetable.
type Scheduler struct {
	Buffers Buffers
	Logger  logger.Logger
	Now     func() time.Time
}

// New returns a Scheduler using the configured buffers.
func New(cfg Config, log logger.Logger) *Scheduler {
	cfg.SetDefaults()
	return &Scheduler{Buffers: cfg.Buffers(), Logger: logger.OrDiscard(log), Now: time.Now}
}

// Result is the outcome of a baseline build.
type Result struct {
	Schedule *model.Schedule
	// Order is the placement order of the trains.
	Order []string
	// Skipped lists, per train, the hops that could not be placed.
	Skipped map[string][]model.Hop
}

// Sort orders trains by priority, then scheduled departure, then id.
func Sort(trains []model.Train) []model.Train {
	out := append([]model.Train(nil), trains...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledDeparture.Equal(b.ScheduledDeparture) {
			return a.ScheduledDeparture.Before(b.ScheduledDeparture)
		}
		return a.ID < b.ID
	})
	return out
}

// RouteUsage counts, per station, the trains whose route visits it.
func RouteUsage(trains []model.Train) map[string]int {
	usage := make(map[string]int)
	for _, t := range trains {
		seen := make(map[string]bool, len(t.Route))
		for _, code := range t.Route {
			if !seen[code] {
				seen[code] = true
				usage[code]++
			}
		}
	}
	return usage
}

// Build places every train on a fresh timeline. It never fails: hops whose
// track or station is missing are skipped and the train is flagged
// incomplete.
func (s *Scheduler) Build(trains []model.Train, net *network.Network) *Result {
	log := logger.OrDiscard(s.Logger)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	tl := timeline.New()
	usage := RouteUsage(trains)
	sched := model.NewSchedule(uuid.NewString(), model.SourceBaseline, now())
	res := &Result{Schedule: sched, Skipped: make(map[string][]model.Hop)}
	rounds := 2*len(trains) + 2

	for _, t := range Sort(trains) {
		res.Order = append(res.Order, t.ID)
		class := t.EffectiveClass()
		ts := &model.TrainSchedule{
			TrainID:            t.ID,
			Priority:           t.Priority,
			Class:              class,
			ScheduledDeparture: t.ScheduledDeparture,
			ScheduledArrival:   t.ScheduledArrival,
			Status:             model.StatusScheduled,
		}
		current := t.ScheduledDeparture
		for i := 0; i+1 < len(t.Route); i++ {
			hop := model.Hop{From: t.Route[i], To: t.Route[i+1]}
			final := i+2 == len(t.Route)
			st, ok := net.Station(hop.To)
			if !ok {
				s.skip(log, res, ts, hop, "unknown station")
				continue
			}
			tracks, err := net.TracksBetween(hop.From, hop.To)
			if err != nil || len(tracks) == 0 {
				s.skip(log, res, ts, hop, "no track")
				continue
			}
			tr := pickTrack(tl, tracks, t.SpeedKmh, current, s.Buffers.Track)
			travel := model.TravelTime(tr, t.SpeedKmh)
			dwell := model.DwellTime(class, st, final)
			stopLen := dwell
			if final {
				stopLen = model.BaseDwell(class)
			}
			p := placement{
				track: tr.ID, station: st.Code, travel: travel, dur: travel + dwell, stopLen: stopLen,
				constrained: usage[st.Code] > st.Platforms, capacity: st.Platforms,
			}
			start := s.resolve(tl, p, current, rounds)
			end := start.Add(p.dur)
			tl.Reserve(tr.ID, start, end, t.ID)
			if p.constrained {
				stop := start.Add(travel)
				tl.ReservePlatform(st.Code, stop, stop.Add(stopLen), t.ID)
			}
			ts.Segments = append(ts.Segments, model.Segment{
				TrainID: t.ID, TrackID: tr.ID, From: hop.From, To: hop.To,
				Start: start, End: end, Dwell: dwell,
			})
			current = end
		}
		ts.FinalArrival = current
		if ts.FinalArrival.Before(t.ScheduledArrival) {
			ts.FinalArrival = t.ScheduledArrival
		}
		ts.DelayMinutes = delayMinutes(ts.FinalArrival, t.ScheduledArrival)
		sched.Trains[t.ID] = ts
	}
	log.Infof("baseline %s: %d trains placed, %d incomplete", sched.ID, len(res.Order), len(res.Skipped))
	return res
}

type placement struct {
	track       string
	station     string
	travel      time.Duration
	dur         time.Duration
	stopLen     time.Duration
	constrained bool
	capacity    int
}

// resolve alternates the track and platform searches until both agree. When
// they keep disagreeing the hop is placed after every known reservation.
func (s *Scheduler) resolve(tl *timeline.Timeline, p placement, desired time.Time, rounds int) time.Time {
	start := desired
	for i := 0; i < rounds; i++ {
		start = tl.EarliestAvailableStart(p.track, start, p.dur, s.Buffers.Track)
		if !p.constrained {
			return start
		}
		stop := start.Add(p.travel)
		ps := tl.EarliestPlatformStart(p.station, stop, p.stopLen, s.Buffers.Platform, p.capacity)
		if ps.Equal(stop) {
			return start
		}
		start = ps.Add(-p.travel)
	}
	start = maxTime(desired, tl.Latest(p.track).Add(s.Buffers.Track))
	if p.constrained {
		start = maxTime(start, tl.LatestStop(p.station).Add(s.Buffers.Platform-p.travel))
	}
	return start
}

func (s *Scheduler) skip(log logger.Logger, res *Result, ts *model.TrainSchedule, hop model.Hop, why string) {
	log.Warnf("train %s: skipping hop %s->%s: %s", ts.TrainID, hop.From, hop.To, why)
	ts.Incomplete = true
	ts.SkippedHops = append(ts.SkippedHops, hop)
	res.Skipped[ts.TrainID] = append(res.Skipped[ts.TrainID], hop)
}

// pickTrack returns the parallel track with the fewest overlapping
// reservations around the desired slot. Ties go to the lowest id, which is
// the input order.
func pickTrack(tl *timeline.Timeline, tracks []model.Track, speed float64, at time.Time, buffer time.Duration) model.Track {
	best := tracks[0]
	bestN := -1
	for _, tr := range tracks {
		end := at.Add(model.TravelTime(tr, speed))
		n := tl.Overlapping(tr.ID, at, end, buffer)
		if bestN < 0 || n < bestN {
			best, bestN = tr, n
		}
	}
	return best
}

func delayMinutes(actual, scheduled time.Time) float64 {
	if !actual.After(scheduled) {
		return 0
	}
	return actual.Sub(scheduled).Minutes()
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
