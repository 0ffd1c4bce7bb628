// Package optimizer improves a feasible baseline timetable. Segment starts are
// the decision variables and every resource rule is a difference constraint
// between two starts. A local search reorders trains on each track and the
// best ordering is timed by a linear program or by longest-path propagation.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/railsched/core/logger"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
)

var (
	// ErrInfeasible indicates that no ordering satisfies every constraint.
	ErrInfeasible = errors.New("optimization infeasible")
	// ErrTimeout indicates the time budget expired before a solution was ready.
	// A cancelled caller context is reported as its own error instead.
	ErrTimeout = errors.New("optimization timed out")
)

// interrupted reports why the run stopped: the caller's context error when
// parent is done, otherwise the expired budget.
func interrupted(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("optimization cancelled: %w", err)
	}
	return ErrTimeout
}

// Problem is the input of one optimization run.
type Problem struct {
	Trains   []model.Train
	Network  *network.Network
	Baseline *model.Schedule
}

// Result is a successful optimization.
type Result struct {
	Schedule        *model.Schedule
	ObjectiveBefore float64
	ObjectiveAfter  float64
	Iterations      int
	Swaps           int
	Solver          string
	Duration        time.Duration
}

// Optimizer searches for a better timetable than the baseline.
type Optimizer struct {
	cfg Config
	log logger.Logger
	now func() time.Time
}

// New returns an Optimizer. Unset config fields take their defaults.
func New(cfg Config, log logger.Logger) *Optimizer {
	cfg.SetDefaults()
	return &Optimizer{cfg: cfg, log: logger.OrDiscard(log), now: time.Now}
}

func (o *Optimizer) Config() Config { return o.cfg }

// Solve runs the search within the configured time budget. On error the
// caller keeps the baseline.
func (o *Optimizer) Solve(ctx context.Context, p Problem) (*Result, error) {
	if p.Baseline == nil || p.Network == nil {
		return nil, fmt.Errorf("%w: missing baseline or network", ErrInfeasible)
	}
	started := o.now()
	parent := ctx
	if budget := o.cfg.Budget(); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	if ctx.Err() != nil {
		return nil, interrupted(parent)
	}

	f, seq, err := formulate(p, o.cfg)
	if err != nil {
		return nil, err
	}
	res := &Result{Solver: o.cfg.Solver}
	if len(f.vars) == 0 {
		res.Schedule = o.assemble(p.Baseline, f, nil)
		res.Solver = SolverPropagation
		res.Duration = o.now().Sub(started)
		return res, nil
	}
	res.ObjectiveBefore = f.objective(f.base)

	lb := f.lowerBounds()
	x, ok := f.propagate(seq, lb)
	if !ok {
		return nil, fmt.Errorf("%w: baseline ordering violates the horizon or is cyclic", ErrInfeasible)
	}
	best := f.objective(x)

	// first-improvement search over adjacent swaps
	improved := true
	for improved && res.Iterations < o.cfg.MaxIterations {
		improved = false
		for _, track := range f.trackIDs {
			s := seq[track]
			for i := 0; i+1 < len(s) && res.Iterations < o.cfg.MaxIterations; i++ {
				if ctx.Err() != nil {
					return nil, interrupted(parent)
				}
				if f.vars[s[i]].train == f.vars[s[i+1]].train {
					continue
				}
				res.Iterations++
				s[i], s[i+1] = s[i+1], s[i]
				cand, ok := f.propagate(seq, lb)
				if ok {
					if obj := f.objective(cand); obj < best-1e-9 {
						x, best = cand, obj
						res.Swaps++
						improved = true
						continue
					}
				}
				s[i], s[i+1] = s[i+1], s[i]
			}
		}
	}

	x, err = o.time(ctx, parent, f, seq, x, res)
	if err != nil {
		return nil, err
	}
	res.ObjectiveAfter = f.objective(x)
	res.Schedule = o.assemble(p.Baseline, f, x)
	res.Duration = o.now().Sub(started)
	o.log.Infof("optimizer: objective %.2f -> %.2f after %d iterations (%d swaps, %s)",
		res.ObjectiveBefore, res.ObjectiveAfter, res.Iterations, res.Swaps, res.Solver)
	return res, nil
}

type lpOutcome struct {
	x   []float64
	err error
}

// time fixes the start times for the incumbent sequences. The propagated
// starts x are kept when the LP is skipped or fails.
//
// The simplex cannot be interrupted. When ctx ends first the solver goroutine
// runs on until it finishes and its result is dropped into the buffered
// channel; max_lp_variables bounds how long that takes.
func (o *Optimizer) time(ctx, parent context.Context, f *formulation, seq sequences, x []int64, res *Result) ([]int64, error) {
	if o.cfg.Solver != SolverLP || len(f.vars) > o.cfg.MaxLPVariables {
		res.Solver = SolverPropagation
		return x, nil
	}
	c, g, h := f.buildLP(seq)
	solve := lpSolve
	done := make(chan lpOutcome, 1)
	go func() {
		sol, err := solve(c, g, h)
		done <- lpOutcome{x: sol, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, interrupted(parent)
	case out := <-done:
		if out.err != nil {
			o.log.Warnf("optimizer: lp failed, keeping propagated times: %v", out.err)
			res.Solver = SolverPropagation
			return x, nil
		}
		rx, ok := f.repair(seq, out.x)
		if !ok {
			o.log.Warnf("optimizer: lp solution not repairable, keeping propagated times")
			res.Solver = SolverPropagation
			return x, nil
		}
		res.Solver = SolverLP
		return rx, nil
	}
}

// assemble turns the starts into a schedule. Trains that were not part of the
// model are copied from the baseline.
func (o *Optimizer) assemble(base *model.Schedule, f *formulation, x []int64) *model.Schedule {
	out := model.NewSchedule(uuid.NewString(), model.SourceOptimized, o.now())
	modelled := make(map[string]bool, len(f.trains))
	for _, t := range f.trains {
		modelled[t.id] = true
		ts := base.Trains[t.id].Clone()
		ts.Status = model.StatusScheduled
		ts.Reason = ""
		for k, v := range t.vars {
			start := f.epoch.Add(time.Duration(x[v]) * time.Second)
			ts.Segments[k].Start = start
			ts.Segments[k].End = start.Add(time.Duration(f.vars[v].dur) * time.Second)
		}
		last := ts.Segments[len(ts.Segments)-1].End
		ts.FinalArrival = last
		if ts.FinalArrival.Before(ts.ScheduledArrival) {
			ts.FinalArrival = ts.ScheduledArrival
		}
		ts.DelayMinutes = 0
		if last.After(ts.ScheduledArrival) {
			ts.DelayMinutes = last.Sub(ts.ScheduledArrival).Minutes()
		}
		out.Trains[t.id] = ts
	}
	for id, ts := range base.Trains {
		if !modelled[id] {
			out.Trains[id] = ts.Clone()
		}
	}
	return out
}
