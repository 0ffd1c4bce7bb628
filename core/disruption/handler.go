// Package disruption applies real-time events to a schedule. Each event is
// validated into a typed variant, applied to a private copy of the schedule
// and followed by a bounded cascade that settles the conflicts it created.
package disruption

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/railsched/core/logger"
	"github.com/kilianp07/railsched/core/model"
)

// Config holds the delays applied per event kind, in minutes. A zero field
// takes its default: a zero-minute delay would leave the event without
// effect, so it is never a meaningful setting. Use a delay event of zero
// minutes to record an incident that changes nothing.
type Config struct {
	CascadeDelayMinutes  int `json:"cascade_delay_minutes" yaml:"cascade_delay_minutes" koanf:"cascade_delay_minutes"`
	BreakdownHighMinutes int `json:"breakdown_high_minutes" yaml:"breakdown_high_minutes" koanf:"breakdown_high_minutes"`
	BreakdownMinutes     int `json:"breakdown_minutes" yaml:"breakdown_minutes" koanf:"breakdown_minutes"`
	WeatherLowMinutes    int `json:"weather_low_minutes" yaml:"weather_low_minutes" koanf:"weather_low_minutes"`
	WeatherMediumMinutes int `json:"weather_medium_minutes" yaml:"weather_medium_minutes" koanf:"weather_medium_minutes"`
	WeatherHighMinutes   int `json:"weather_high_minutes" yaml:"weather_high_minutes" koanf:"weather_high_minutes"`
	// MaxCascadeIterations bounds conflict resolution. Zero means the square
	// of the number of trains.
	MaxCascadeIterations int `json:"max_cascade_iterations" yaml:"max_cascade_iterations" koanf:"max_cascade_iterations"`
}

func (c *Config) SetDefaults() {
	if c.CascadeDelayMinutes == 0 {
		c.CascadeDelayMinutes = 30
	}
	if c.BreakdownHighMinutes == 0 {
		c.BreakdownHighMinutes = 60
	}
	if c.BreakdownMinutes == 0 {
		c.BreakdownMinutes = 30
	}
	if c.WeatherLowMinutes == 0 {
		c.WeatherLowMinutes = 15
	}
	if c.WeatherMediumMinutes == 0 {
		c.WeatherMediumMinutes = 45
	}
	if c.WeatherHighMinutes == 0 {
		c.WeatherHighMinutes = 90
	}
}

func (c Config) Validate() error {
	for name, v := range map[string]int{
		"cascade_delay_minutes":  c.CascadeDelayMinutes,
		"breakdown_high_minutes": c.BreakdownHighMinutes,
		"breakdown_minutes":      c.BreakdownMinutes,
		"weather_low_minutes":    c.WeatherLowMinutes,
		"weather_medium_minutes": c.WeatherMediumMinutes,
		"weather_high_minutes":   c.WeatherHighMinutes,
		"max_cascade_iterations": c.MaxCascadeIterations,
	} {
		if v < 0 {
			return fmt.Errorf("disruption %s must not be negative", name)
		}
	}
	if c.CascadeDelayMinutes == 0 {
		return fmt.Errorf("disruption cascade_delay_minutes must be positive")
	}
	return nil
}

// Outcome summarises the application of one event.
type Outcome struct {
	EventID string `json:"event_id"`
	Kind    Kind   `json:"kind"`
	// Affected are the trains changed by the event itself.
	Affected []string `json:"affected"`
	// Cascaded are the trains delayed to settle new conflicts.
	Cascaded   []string         `json:"cascaded,omitempty"`
	Residual   []model.Conflict `json:"residual,omitempty"`
	Iterations int              `json:"iterations"`
	// Skipped lists referenced train or track ids absent from the schedule.
	Skipped []string `json:"skipped,omitempty"`
}

// Handler applies events to schedules. It holds no schedule state.
type Handler struct {
	cfg Config
	log logger.Logger
}

func NewHandler(cfg Config, log logger.Logger) *Handler {
	cfg.SetDefaults()
	return &Handler{cfg: cfg, log: logger.OrDiscard(log)}
}

// Apply mutates s according to e and resolves the conflicts it introduced.
// Callers pass a copy when the original must stay intact.
func (h *Handler) Apply(s *model.Schedule, e Event) Outcome {
	out := Outcome{EventID: e.ID, Kind: e.Kind()}
	before := make(map[string]bool)
	for _, c := range s.Conflicts(0) {
		before[c.Key()] = true
	}

	switch d := e.Disruption.(type) {
	case TrainDelay:
		h.delayTrains(s, d.TrainIDs, d.Minutes, "Delay: "+e.ID, &out)
	case Generic:
		h.delayTrains(s, d.TrainIDs, d.Minutes, "Delay: "+e.ID, &out)
	case Breakdown:
		h.breakdown(s, d, e.ID, &out)
	case Obstruction:
		h.obstruction(s, d, e.ID, &out)
	case Weather:
		h.weather(s, d, e.ID, &out)
	}

	h.cascade(s, e.ID, before, &out)
	h.log.Infof("disruption %s (%s): %d affected, %d cascaded, %d residual",
		e.ID, out.Kind, len(out.Affected), len(out.Cascaded), len(out.Residual))
	return out
}

func (h *Handler) delayTrains(s *model.Schedule, ids []string, minutes int, reason string, out *Outcome) {
	for _, id := range ids {
		ts, ok := s.Trains[id]
		if !ok {
			out.Skipped = append(out.Skipped, id)
			continue
		}
		if delay(ts, minutes, reason) {
			out.Affected = append(out.Affected, id)
		}
	}
}

func (h *Handler) breakdown(s *model.Schedule, d Breakdown, id string, out *Outcome) {
	reason := "Breakdown: " + id
	for _, tid := range d.TrainIDs {
		ts, ok := s.Trains[tid]
		if !ok {
			out.Skipped = append(out.Skipped, tid)
			continue
		}
		if ts.Status == model.StatusCancelled {
			continue
		}
		switch d.Severity {
		case SeverityCritical:
			ts.Status = model.StatusCancelled
			ts.Reason = reason
			out.Affected = append(out.Affected, tid)
		case SeverityHigh:
			if delay(ts, h.cfg.BreakdownHighMinutes, reason) {
				out.Affected = append(out.Affected, tid)
			}
		default:
			if delay(ts, h.cfg.BreakdownMinutes, reason) {
				out.Affected = append(out.Affected, tid)
			}
		}
	}
}

func (h *Handler) obstruction(s *model.Schedule, d Obstruction, id string, out *Outcome) {
	blocked := make(map[string]bool, len(d.TrackIDs))
	used := make(map[string]bool)
	for _, t := range d.TrackIDs {
		blocked[t] = true
	}
	reason := "Track obstruction: " + id
	for _, tid := range s.TrainIDs() {
		ts := s.Trains[tid]
		hit := false
		for _, seg := range ts.Segments {
			if blocked[seg.TrackID] {
				used[seg.TrackID] = true
				hit = true
			}
		}
		if hit && delay(ts, d.Minutes, reason) {
			out.Affected = append(out.Affected, tid)
		}
	}
	for _, t := range d.TrackIDs {
		if !used[t] {
			out.Skipped = append(out.Skipped, t)
		}
	}
}

func (h *Handler) weather(s *model.Schedule, d Weather, id string, out *Outcome) {
	minutes := h.cfg.WeatherHighMinutes
	switch d.Severity {
	case SeverityLow:
		minutes = h.cfg.WeatherLowMinutes
	case SeverityMedium:
		minutes = h.cfg.WeatherMediumMinutes
	}
	h.delayTrains(s, s.TrainIDs(), minutes, "Weather: "+id, out)
}

// delay shifts a train and reports whether it changed. Cancelled trains and
// zero delays are left untouched.
func delay(ts *model.TrainSchedule, minutes int, reason string) bool {
	if minutes <= 0 || ts.Status == model.StatusCancelled {
		return false
	}
	ts.Shift(time.Duration(minutes) * time.Minute)
	ts.DelayMinutes += float64(minutes)
	ts.Status = model.StatusDelayed
	if reason != "" {
		ts.Reason = reason
	}
	return true
}

// cascade resolves, through an explicit queue, the exact-overlap conflicts
// that did not exist before the event. Each resolution delays the less
// important train of the pair and enqueues its new conflicts.
func (h *Handler) cascade(s *model.Schedule, id string, before map[string]bool, out *Outcome) {
	limit := h.cfg.MaxCascadeIterations
	if limit == 0 {
		limit = len(s.Trains) * len(s.Trains)
	}
	if limit < 1 {
		limit = 1
	}
	var queue []model.Conflict
	for _, c := range s.Conflicts(0) {
		if !before[c.Key()] {
			queue = append(queue, c)
		}
	}
	cascaded := make(map[string]bool)
	for len(queue) > 0 && out.Iterations < limit {
		c := queue[0]
		queue = queue[1:]
		if !pairConflicts(s, c) {
			continue
		}
		out.Iterations++
		loser := s.Trains[yielding(s, c.TrainA, c.TrainB)]
		reason := ""
		if loser.Reason == "" {
			reason = "Knock-on delay: " + id
		}
		delay(loser, h.cfg.CascadeDelayMinutes, reason)
		if !cascaded[loser.TrainID] {
			cascaded[loser.TrainID] = true
			out.Cascaded = append(out.Cascaded, loser.TrainID)
		}
		for _, nc := range s.Conflicts(0) {
			if before[nc.Key()] || (nc.TrainA != loser.TrainID && nc.TrainB != loser.TrainID) {
				continue
			}
			queue = append(queue, nc)
		}
	}
	for _, c := range s.Conflicts(0) {
		if !before[c.Key()] {
			out.Residual = append(out.Residual, c)
		}
	}
	if len(out.Residual) > 0 {
		h.log.Warnf("disruption %s: %d conflicts left after %d iterations", id, len(out.Residual), out.Iterations)
	}
}

// yielding returns the train that gives way: the higher priority number, then
// the later scheduled departure, then the greater id.
func yielding(s *model.Schedule, a, b string) string {
	ta, tb := s.Trains[a], s.Trains[b]
	if ta.Priority != tb.Priority {
		if ta.Priority > tb.Priority {
			return a
		}
		return b
	}
	if !ta.ScheduledDeparture.Equal(tb.ScheduledDeparture) {
		if ta.ScheduledDeparture.After(tb.ScheduledDeparture) {
			return a
		}
		return b
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[1]
}

func pairConflicts(s *model.Schedule, c model.Conflict) bool {
	ta, tb := s.Trains[c.TrainA], s.Trains[c.TrainB]
	if ta == nil || tb == nil || ta.Status == model.StatusCancelled || tb.Status == model.StatusCancelled {
		return false
	}
	for _, sa := range ta.Segments {
		if sa.TrackID != c.TrackID {
			continue
		}
		for _, sb := range tb.Segments {
			if sb.TrackID == c.TrackID && sa.Overlaps(sb, 0) {
				return true
			}
		}
	}
	return false
}
