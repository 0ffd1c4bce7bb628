// Package engine owns the schedule state of one scheduling context. It ties
// the baseline scheduler, the optimizer, the disruption handler and the KPI
// calculator together and serializes every mutation.
//
// Readers take copy-on-write snapshots and never wait for a search. Writers
// hold a single mutation token: a running optimization keeps it until its
// candidate has been swapped in or discarded, so disruptions arriving in the
// meantime queue behind it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/railsched/core/disruption"
	"github.com/kilianp07/railsched/core/events"
	"github.com/kilianp07/railsched/core/journal"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/core/logger"
	"github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
	"github.com/kilianp07/railsched/core/optimizer"
	"github.com/kilianp07/railsched/core/scheduler"
	"github.com/kilianp07/railsched/internal/eventbus"
)

var (
	// ErrNoSchedule is returned before the first schedule is generated.
	ErrNoSchedule = errors.New("no schedule generated")
	// ErrBusy is returned when a mutation gave up waiting for the engine.
	ErrBusy = errors.New("engine busy, retry later")
	// ErrInvalidTrains is returned when the train list cannot be scheduled.
	ErrInvalidTrains = errors.New("invalid trains")
)

// KPI snapshot sources.
const (
	SourceBaseline = "baseline"
	SourceCurrent  = "current"
)

// Config groups the settings of every component driven by the engine.
type Config struct {
	Scheduler  scheduler.Config  `json:"scheduler"`
	Optimizer  optimizer.Config  `json:"optimizer"`
	Disruption disruption.Config `json:"disruption"`
	KPI        kpi.Calculator    `json:"kpi"`
}

// DefaultConfig returns a configuration with the optimizer enabled.
func DefaultConfig() Config {
	c := Config{Optimizer: optimizer.DefaultConfig(), KPI: kpi.NewCalculator()}
	c.SetDefaults()
	return c
}

func (c *Config) SetDefaults() {
	c.Scheduler.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Disruption.SetDefaults()
	c.KPI.SetDefaults()
}

func (c Config) Validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}
	if err := c.Disruption.Validate(); err != nil {
		return err
	}
	if c.KPI.WindowHours < 0 || c.KPI.OnTimeThresholdMinutes < 0 {
		return errors.New("kpi settings must not be negative")
	}
	return nil
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrDiscard(l) } }

// WithBus publishes engine events on bus.
func WithBus(bus eventbus.EventBus) Option { return func(e *Engine) { e.bus = bus } }

// WithSink records KPI snapshots to sink.
func WithSink(sink metrics.MetricsSink) Option { return func(e *Engine) { e.sink = sink } }

// WithJournal appends an audit record for every decision to store.
func WithJournal(store journal.Store) Option { return func(e *Engine) { e.journal = store } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// GenerateResult describes one GenerateSchedule call.
type GenerateResult struct {
	// Schedule is the schedule that became current.
	Schedule   *model.Schedule
	BaselineID string
	// Optimized is true when the optimizer candidate replaced the baseline.
	Optimized bool
	// OptimizationErr explains why the baseline was kept, if it was.
	OptimizationErr error
	// Skipped lists, per train, the hops that could not be placed.
	Skipped      map[string][]model.Hop
	BaselineKPIs kpi.Report
	KPIs         kpi.Report
	Improvement  kpi.Improvement
}

type state struct {
	net          *network.Network
	baseline     *model.Schedule
	current      *model.Schedule
	baselineKPIs kpi.Report
	currentKPIs  kpi.Report
}

// Engine is the single owner of the schedule state.
type Engine struct {
	cfg       Config
	scheduler *scheduler.Scheduler
	optimizer *optimizer.Optimizer
	handler   *disruption.Handler
	registry  *disruption.Registry
	tracker   kpi.Tracker

	log     logger.Logger
	bus     eventbus.EventBus
	sink    metrics.MetricsSink
	journal journal.Store
	kpis    *eventbus.TypedBus[kpi.Report]
	now     func() time.Time

	// solve runs the optimizer. Tests replace it.
	solve func(context.Context, optimizer.Problem) (*optimizer.Result, error)

	// token serializes mutations and is held across a search.
	token chan struct{}

	mu sync.RWMutex
	st state
}

// New creates an Engine. Unset config fields take their defaults.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{
		cfg:      cfg,
		registry: disruption.NewRegistry(),
		log:      logger.Discard{},
		sink:     metrics.NopSink{},
		journal:  journal.NopStore{},
		kpis:     eventbus.NewTyped[kpi.Report](),
		now:      time.Now,
		token:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(e)
	}
	e.scheduler = scheduler.New(cfg.Scheduler, e.log)
	e.scheduler.Now = e.now
	e.optimizer = optimizer.New(cfg.Optimizer, e.log)
	e.handler = disruption.NewHandler(cfg.Disruption, e.log)
	e.solve = e.optimizer.Solve
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// acquire takes the mutation token or gives up with ErrBusy when ctx ends.
func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		busyRejections.Inc()
		return fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}
}

func (e *Engine) release() { <-e.token }

// GenerateSchedule builds the baseline for trains, publishes it as current
// and then tries to improve it. The optimizer runs without the state lock;
// its candidate replaces the baseline only if it passes validation. Any
// optimizer failure keeps the baseline and is reported in the result.
func (e *Engine) GenerateSchedule(ctx context.Context, trains []model.Train, net *network.Network) (*GenerateResult, error) {
	if err := validateTrains(trains, net); err != nil {
		return nil, err
	}
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	built := e.scheduler.Build(trains, net)
	base := built.Schedule
	baseKPIs := e.cfg.KPI.Calculate(base, net.TrackCount())

	e.mu.Lock()
	e.st = state{
		net:          net,
		baseline:     base,
		current:      base,
		baselineKPIs: baseKPIs,
		currentKPIs:  baseKPIs,
	}
	e.mu.Unlock()
	e.observe(baseKPIs)
	schedulesGenerated.Inc()

	incomplete := 0
	for _, ts := range base.Trains {
		if ts.Incomplete {
			incomplete++
		}
	}
	e.publish(events.ScheduleEvent{
		ScheduleID: base.ID, Source: string(base.Source), Trains: len(base.Trains),
		Incomplete: incomplete, At: base.GeneratedAt,
	})
	e.record(ctx, journal.KindSchedule, base.ID, "", base)
	e.recordKPIs(SourceBaseline, baseKPIs)

	res := &GenerateResult{
		Schedule:     base.Clone(),
		BaselineID:   base.ID,
		Skipped:      built.Skipped,
		BaselineKPIs: baseKPIs,
		KPIs:         baseKPIs,
	}
	if !e.cfg.Optimizer.Enabled {
		e.recordKPIs(SourceCurrent, baseKPIs)
		return res, nil
	}

	candidate, err := e.optimize(ctx, optimizer.Problem{Trains: trains, Network: net, Baseline: base})
	if err != nil {
		res.OptimizationErr = err
		e.log.Warnf("schedule %s: keeping baseline: %v", base.ID, err)
		e.recordKPIs(SourceCurrent, baseKPIs)
		return res, nil
	}

	optKPIs := e.cfg.KPI.Calculate(candidate, net.TrackCount())
	e.mu.Lock()
	e.st.current = candidate
	e.st.currentKPIs = optKPIs
	e.mu.Unlock()
	e.observe(optKPIs)
	e.publish(events.ScheduleEvent{
		ScheduleID: candidate.ID, Source: string(candidate.Source), Trains: len(candidate.Trains),
		Incomplete: incomplete, At: candidate.GeneratedAt,
	})
	e.record(ctx, journal.KindSchedule, candidate.ID, "", candidate)
	e.recordKPIs(SourceCurrent, optKPIs)

	res.Schedule = candidate.Clone()
	res.Optimized = true
	res.KPIs = optKPIs
	res.Improvement = kpi.Compare(baseKPIs, optKPIs)
	return res, nil
}

// optimize runs the search and validates its candidate. Every outcome is
// published as an OptimizationEvent.
func (e *Engine) optimize(ctx context.Context, p optimizer.Problem) (*model.Schedule, error) {
	started := e.now()
	out, err := e.solve(ctx, p)
	ev := events.OptimizationEvent{ScheduleID: p.Baseline.ID, Solver: e.cfg.Optimizer.Solver}
	if out != nil {
		ev.Solver = out.Solver
		ev.ObjectiveBefore = out.ObjectiveBefore
		ev.ObjectiveAfter = out.ObjectiveAfter
		ev.Iterations = out.Iterations
		ev.Swaps = out.Swaps
	}
	if err == nil && (out == nil || out.Schedule == nil) {
		err = fmt.Errorf("%w: empty result", optimizer.ErrInfeasible)
	}
	if err == nil {
		exact := scheduler.Buffers{Track: time.Duration(e.cfg.Optimizer.HeadwayMinutes) * time.Minute}
		if v := scheduler.Validate(out.Schedule, p.Network, exact); len(v) > 0 {
			err = fmt.Errorf("%w: candidate rejected: %s", optimizer.ErrInfeasible, v[0])
		}
	}
	ev.Duration = e.now().Sub(started)
	ev.Accepted = err == nil
	ev.Err = err
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
		switch {
		case errors.Is(err, optimizer.ErrTimeout):
			outcome = "timeout"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = "cancelled"
		}
	}
	optimizationLatency.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
	e.publish(ev)
	e.record(ctx, journal.KindOptimization, p.Baseline.ID, "", optimizationPayload{
		Solver: ev.Solver, Accepted: ev.Accepted, ObjectiveBefore: ev.ObjectiveBefore,
		ObjectiveAfter: ev.ObjectiveAfter, Iterations: ev.Iterations, Swaps: ev.Swaps,
		DurationMS: ev.Duration.Milliseconds(), Error: errString(err),
	})
	if err != nil {
		return nil, err
	}
	return out.Schedule, nil
}

// ApplyDisruption validates spec, applies it to a copy of the current
// schedule and publishes the copy. Malformed events are rejected before any
// state is touched. The call waits for a running search and returns ErrBusy
// if ctx ends first.
func (e *Engine) ApplyDisruption(ctx context.Context, spec disruption.Spec) (disruption.Outcome, error) {
	ev, err := disruption.NewEvent(spec, e.now())
	if err != nil {
		return disruption.Outcome{}, err
	}
	if err := e.acquire(ctx); err != nil {
		return disruption.Outcome{}, err
	}
	defer e.release()

	e.mu.RLock()
	cur, net := e.st.current, e.st.net
	e.mu.RUnlock()
	if cur == nil {
		return disruption.Outcome{}, ErrNoSchedule
	}
	if e.registry.Contains(ev.ID) {
		return disruption.Outcome{}, fmt.Errorf("%w: %s", disruption.ErrDuplicateEvent, ev.ID)
	}

	next := cur.Clone()
	out := e.handler.Apply(next, ev)
	if err := e.registry.Add(ev); err != nil {
		return disruption.Outcome{}, err
	}
	report := e.cfg.KPI.Calculate(next, net.TrackCount())
	e.mu.Lock()
	e.st.current = next
	e.st.currentKPIs = report
	e.mu.Unlock()
	e.observe(report)

	disruptionsApplied.WithLabelValues(string(out.Kind)).Inc()
	residualConflicts.Add(float64(len(out.Residual)))
	e.publish(events.DisruptionEvent{
		EventID: ev.ID, Kind: string(out.Kind), Action: events.ActionApplied,
		Affected: len(out.Affected), Cascaded: len(out.Cascaded), Residual: len(out.Residual), At: ev.IssuedAt,
	})
	e.record(ctx, journal.KindDisruptionApplied, next.ID, ev.ID, out)
	e.recordKPIs(SourceCurrent, report)
	return out, nil
}

// ResolveDisruption marks an event resolved. The schedule is not changed.
func (e *Engine) ResolveDisruption(id string) (disruption.Event, error) {
	ev, err := e.registry.Resolve(id, e.now())
	if err != nil {
		return disruption.Event{}, err
	}
	at := e.now()
	if ev.ResolvedAt != nil {
		at = *ev.ResolvedAt
	}
	e.publish(events.DisruptionEvent{EventID: ev.ID, Kind: string(ev.Kind()), Action: events.ActionResolved, At: at})
	scheduleID := ""
	e.mu.RLock()
	if e.st.current != nil {
		scheduleID = e.st.current.ID
	}
	e.mu.RUnlock()
	e.record(context.Background(), journal.KindDisruptionResolved, scheduleID, ev.ID, ev)
	return ev, nil
}

// CurrentSchedule returns a copy of the schedule in force.
func (e *Engine) CurrentSchedule() (*model.Schedule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st.current == nil {
		return nil, ErrNoSchedule
	}
	return e.st.current.Clone(), nil
}

// BaselineSchedule returns a copy of the last greedy baseline.
func (e *Engine) BaselineSchedule() (*model.Schedule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st.baseline == nil {
		return nil, ErrNoSchedule
	}
	return e.st.baseline.Clone(), nil
}

// KPIs returns the report of the current schedule.
func (e *Engine) KPIs() (kpi.Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st.current == nil {
		return kpi.Report{}, ErrNoSchedule
	}
	return e.st.currentKPIs, nil
}

// BaselineKPIs returns the report of the baseline schedule.
func (e *Engine) BaselineKPIs() (kpi.Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st.baseline == nil {
		return kpi.Report{}, ErrNoSchedule
	}
	return e.st.baselineKPIs, nil
}

// Improvement compares the current schedule with the baseline.
func (e *Engine) Improvement() (kpi.Improvement, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st.current == nil {
		return kpi.Improvement{}, ErrNoSchedule
	}
	return kpi.Compare(e.st.baselineKPIs, e.st.currentKPIs), nil
}

// Disruptions returns every registered event in insertion order.
func (e *Engine) Disruptions() []disruption.Event { return e.registry.List() }

// Network returns the network of the current schedule, or nil.
func (e *Engine) Network() *network.Network {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.net
}

// SubscribeKPIs streams the reports of every schedule that becomes current.
func (e *Engine) SubscribeKPIs() <-chan kpi.Report { return e.kpis.Subscribe() }

// UnsubscribeKPIs stops a stream returned by SubscribeKPIs.
func (e *Engine) UnsubscribeKPIs(ch <-chan kpi.Report) { e.kpis.Unsubscribe(ch) }

// Close ends the KPI streams. The engine must not be used afterwards.
func (e *Engine) Close() { e.kpis.Close() }

// observe streams r and logs its change from the previous report.
func (e *Engine) observe(r kpi.Report) {
	e.kpis.Publish(r)
	if d, ok := e.tracker.Observe(r); ok {
		e.log.Debugw("kpi delta", map[string]any{
			"schedule_id":     r.ScheduleID,
			"punctuality":     d.Punctuality,
			"delay_reduction": d.DelayReduction,
			"throughput":      d.Throughput,
			"utilization":     d.Utilization,
		})
	}
}

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *Engine) record(ctx context.Context, kind journal.Kind, scheduleID, eventID string, payload any) {
	rec, err := journal.NewRecord(kind, scheduleID, eventID, payload, e.now())
	if err != nil {
		e.log.Errorf("journal: %v", err)
		return
	}
	if err := e.journal.Append(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Errorf("journal append %s: %v", kind, err)
	}
}

func (e *Engine) recordKPIs(source string, r kpi.Report) {
	if err := e.sink.RecordKPIs(metrics.KPISnapshot{Source: source, Report: r, Time: e.now()}); err != nil {
		e.log.Warnf("metrics sink: %v", err)
	}
}

type optimizationPayload struct {
	Solver          string  `json:"solver"`
	Accepted        bool    `json:"accepted"`
	ObjectiveBefore float64 `json:"objective_before"`
	ObjectiveAfter  float64 `json:"objective_after"`
	Iterations      int     `json:"iterations"`
	Swaps           int     `json:"swaps"`
	DurationMS      int64   `json:"duration_ms"`
	Error           string  `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func validateTrains(trains []model.Train, net *network.Network) error {
	if net == nil {
		return fmt.Errorf("%w: missing network", ErrInvalidTrains)
	}
	seen := make(map[string]bool, len(trains))
	for _, t := range trains {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTrains, err)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate train id %s", ErrInvalidTrains, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
