// Package schedule serves read-only views of the engine state over HTTP.
package schedule

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/railsched/core/disruption"
	"github.com/kilianp07/railsched/core/engine"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/core/model"
)

// Source is the read side of the engine.
type Source interface {
	CurrentSchedule() (*model.Schedule, error)
	BaselineSchedule() (*model.Schedule, error)
	KPIs() (kpi.Report, error)
	BaselineKPIs() (kpi.Report, error)
	Improvement() (kpi.Improvement, error)
	Disruptions() []disruption.Event
}

// kpiView is the body of GET /api/kpis.
type kpiView struct {
	Current     kpi.Report      `json:"current"`
	Baseline    kpi.Report      `json:"baseline"`
	Improvement kpi.Improvement `json:"improvement"`
}

// Register mounts /api/schedule, /api/kpis and /api/disruptions on mux.
func Register(mux *http.ServeMux, src Source) {
	mux.Handle("/api/schedule", NewScheduleHandler(src))
	mux.Handle("/api/kpis", NewKPIHandler(src))
	mux.Handle("/api/disruptions", NewDisruptionHandler(src))
}

// NewScheduleHandler exposes the current schedule, or the baseline with
// ?source=baseline.
func NewScheduleHandler(src Source) http.Handler {
	return get(func(r *http.Request) (any, error) {
		switch r.URL.Query().Get("source") {
		case "", engine.SourceCurrent:
			return src.CurrentSchedule()
		case engine.SourceBaseline:
			return src.BaselineSchedule()
		}
		return nil, errBadSource
	})
}

// NewKPIHandler exposes the current and baseline KPI reports.
func NewKPIHandler(src Source) http.Handler {
	return get(func(*http.Request) (any, error) {
		var v kpiView
		var err error
		if v.Current, err = src.KPIs(); err != nil {
			return nil, err
		}
		if v.Baseline, err = src.BaselineKPIs(); err != nil {
			return nil, err
		}
		if v.Improvement, err = src.Improvement(); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// NewDisruptionHandler lists registered disruption events.
func NewDisruptionHandler(src Source) http.Handler {
	return get(func(*http.Request) (any, error) {
		events := src.Disruptions()
		if events == nil {
			events = []disruption.Event{}
		}
		return events, nil
	})
}

var errBadSource = errors.New("source must be current or baseline")

func get(fn func(*http.Request) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := fn(r)
		switch {
		case errors.Is(err, engine.ErrNoSchedule):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case errors.Is(err, errBadSource):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
