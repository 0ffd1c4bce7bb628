// Package kpi computes performance indicators from schedule snapshots.
package kpi

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/railsched/core/model"
)

// ClassPerformance is the breakdown of one train class.
type ClassPerformance struct {
	Count       int     `json:"count"`
	AvgDelay    float64 `json:"avg_delay"`
	Punctuality float64 `json:"punctuality"`
}

// Report is the KPI snapshot of a schedule.
type Report struct {
	ScheduleID          string                                `json:"schedule_id,omitempty"`
	PunctualityRate     float64                               `json:"punctuality_rate"`
	AverageDelayMinutes float64                               `json:"average_delay_minutes"`
	ThroughputPerHour   float64                               `json:"throughput_trains_per_hour"`
	TrackUtilization    float64                               `json:"track_utilization_percent"`
	PriorityPerformance map[model.TrainClass]ClassPerformance `json:"priority_performance"`
	TotalTrains         int                                   `json:"total_trains"`
	OnTimeTrains        int                                   `json:"on_time_trains"`
	DelayedTrains       int                                   `json:"delayed_trains"`
	CancelledTrains     int                                   `json:"cancelled_trains"`
	IncompleteTrains    int                                   `json:"incomplete_trains"`
}

// Improvement compares two reports. Positive values are better.
type Improvement struct {
	Punctuality    float64 `json:"punctuality_improvement"`
	DelayReduction float64 `json:"delay_reduction"`
	Throughput     float64 `json:"throughput_improvement"`
	Utilization    float64 `json:"utilization_improvement"`
}

// Calculator holds the reporting constants.
type Calculator struct {
	WindowHours            float64 `json:"window_hours" yaml:"window_hours" koanf:"window_hours"`
	OnTimeThresholdMinutes float64 `json:"on_time_threshold_minutes" yaml:"on_time_threshold_minutes" koanf:"on_time_threshold_minutes"`
}

// NewCalculator returns a Calculator with a 24 hour window and a 5 minute
// punctuality threshold.
func NewCalculator() Calculator {
	return Calculator{WindowHours: 24, OnTimeThresholdMinutes: 5}
}

func (c *Calculator) SetDefaults() {
	if c.WindowHours == 0 {
		c.WindowHours = 24
	}
	if c.OnTimeThresholdMinutes == 0 {
		c.OnTimeThresholdMinutes = 5
	}
}

// onTime looks at the delay only. A cancelled train keeps the delay it had
// when it was cancelled and is tallied in CancelledTrains besides.
func (c Calculator) onTime(ts *model.TrainSchedule) bool {
	return ts.DelayMinutes <= c.OnTimeThresholdMinutes
}

// Calculate derives the report of s. trackCount is the size of the network.
func (c Calculator) Calculate(s *model.Schedule, trackCount int) Report {
	c.SetDefaults()
	r := Report{PriorityPerformance: make(map[model.TrainClass]ClassPerformance)}
	if s == nil {
		return r
	}
	r.ScheduleID = s.ID
	groups := map[model.TrainClass][]*model.TrainSchedule{
		model.ClassPassenger: nil,
		model.ClassExpress:   nil,
		model.ClassFreight:   nil,
	}
	delays := make([]float64, 0, len(s.Trains))
	var reservedHours float64
	for _, id := range s.TrainIDs() {
		ts := s.Trains[id]
		r.TotalTrains++
		delays = append(delays, ts.DelayMinutes)
		if c.onTime(ts) {
			r.OnTimeTrains++
		} else {
			r.DelayedTrains++
		}
		if ts.Status == model.StatusCancelled {
			r.CancelledTrains++
		}
		if ts.Incomplete {
			r.IncompleteTrains++
		}
		if ts.Status != model.StatusCancelled {
			for _, seg := range ts.Segments {
				reservedHours += seg.End.Sub(seg.Start).Hours()
			}
		}
		cls := model.ClassForPriority(ts.Priority)
		groups[cls] = append(groups[cls], ts)
	}
	for cls, list := range groups {
		r.PriorityPerformance[cls] = c.classPerformance(list)
	}
	if r.TotalTrains == 0 {
		return r
	}
	r.PunctualityRate = round2(float64(r.OnTimeTrains) / float64(r.TotalTrains) * 100)
	r.AverageDelayMinutes = round2(stat.Mean(delays, nil))
	r.ThroughputPerHour = round2(float64(r.TotalTrains) / c.WindowHours)
	if trackCount > 0 {
		r.TrackUtilization = round2(math.Min(100, reservedHours/(float64(trackCount)*c.WindowHours)*100))
	}
	return r
}

func (c Calculator) classPerformance(list []*model.TrainSchedule) ClassPerformance {
	if len(list) == 0 {
		return ClassPerformance{Punctuality: 100}
	}
	delays := make([]float64, len(list))
	onTime := 0
	for i, ts := range list {
		delays[i] = ts.DelayMinutes
		if c.onTime(ts) {
			onTime++
		}
	}
	return ClassPerformance{
		Count:       len(list),
		AvgDelay:    round2(stat.Mean(delays, nil)),
		Punctuality: round2(float64(onTime) / float64(len(list)) * 100),
	}
}

// Compare returns the element-wise improvement of next over base.
func Compare(base, next Report) Improvement {
	return Improvement{
		Punctuality:    round2(next.PunctualityRate - base.PunctualityRate),
		DelayReduction: round2(base.AverageDelayMinutes - next.AverageDelayMinutes),
		Throughput:     round2(next.ThroughputPerHour - base.ThroughputPerHour),
		Utilization:    round2(next.TrackUtilization - base.TrackUtilization),
	}
}

// Tracker remembers the latest report to report deltas between snapshots.
type Tracker struct {
	mu   sync.Mutex
	last *Report
}

// Observe stores r and returns its improvement over the previous report.
// The boolean is false for the first observation.
func (t *Tracker) Observe(r Report) (Improvement, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.last
	t.last = &r
	if prev == nil {
		return Improvement{}, false
	}
	return Compare(*prev, r), true
}

// Last returns the most recent report.
func (t *Tracker) Last() (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Report{}, false
	}
	return *t.last, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
