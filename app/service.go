// Package app wires the engine to its sinks, journal and event collectors.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	journalapi "github.com/kilianp07/railsched/api/journal"
	scheduleapi "github.com/kilianp07/railsched/api/schedule"
	"github.com/kilianp07/railsched/config"
	"github.com/kilianp07/railsched/core/engine"
	"github.com/kilianp07/railsched/core/journal"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/core/monitoring"
	"github.com/kilianp07/railsched/infra/logger"
	"github.com/kilianp07/railsched/infra/metrics"
	"github.com/kilianp07/railsched/internal/eventbus"
	"github.com/kilianp07/railsched/scenario"
)

// Service owns one engine and the infrastructure around it.
type Service struct {
	Engine *engine.Engine

	cfg     *config.Config
	bus     *eventbus.Bus
	sink    coremetrics.MetricsSink
	journal journal.Store
	log     logger.Logger

	startOnce sync.Once
	collector <-chan struct{}
	reporter  *Reporter
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	bus := eventbus.NewWithBuffer(cfg.EventBus.BufferSize)
	eng, err := engine.New(cfg.Engine(),
		engine.WithLogger(logger.New("engine")),
		engine.WithBus(bus),
		engine.WithSink(sink),
		engine.WithJournal(store),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	svc := &Service{Engine: eng, cfg: cfg, bus: bus, sink: sink, journal: store, log: logg}
	if cfg.Reporter.Enabled {
		svc.reporter, err = NewReporter(cfg.Reporter, eng, logger.New("reporter"))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return svc, nil
}

// Start launches the event collector, the Prometheus endpoint and the KPI
// reporter. Later calls are no-ops.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.collector = metrics.StartEventCollector(ctx, s.bus, s.sink)
		if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
			go func() {
				defer monitoring.Recover()
				if err := metrics.StartPromServer(ctx, addr, s.Routes()); err != nil {
					s.log.Errorf("prom server: %v", err)
				}
			}()
		}
		if s.reporter != nil {
			s.reporter.Start()
		}
	})
}

// Routes returns the API handlers served next to /metrics, keyed by path.
// It is empty unless the API is enabled.
func (s *Service) Routes() map[string]http.Handler {
	if !s.cfg.API.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	scheduleapi.Register(mux, s.Engine)
	mux.Handle("/api/journal", journalapi.NewHandler(s.journal, s.cfg.API.Token))
	return map[string]http.Handler{"/api/": mux}
}

// Load generates the schedule of sc.
func (s *Service) Load(ctx context.Context, sc *scenario.Scenario) (*engine.GenerateResult, error) {
	res, err := s.Engine.GenerateSchedule(ctx, sc.Trains, sc.Network)
	if err != nil {
		monitoring.CaptureException(err, map[string]string{"stage": "generate"})
		return nil, err
	}
	if res.OptimizationErr != nil {
		s.log.Warnf("baseline kept for %s: %v", res.BaselineID, res.OptimizationErr)
		monitoring.CaptureException(res.OptimizationErr, map[string]string{
			"stage": "optimize", "schedule_id": res.BaselineID, "solver": s.cfg.Optimizer.Solver,
		})
	}
	s.log.Infof("schedule %s ready: %d trains, punctuality %.2f%%",
		res.Schedule.ID, res.KPIs.TotalTrains, res.KPIs.PunctualityRate)
	return res, nil
}

// Run starts the service, loads sc, replays its disruptions at the given
// speed and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context, sc *scenario.Scenario, speed float64) error {
	s.Start(ctx)
	if _, err := s.Load(ctx, sc); err != nil {
		return err
	}
	if _, err := scenario.Replay(ctx, s.Engine, sc, speed, logger.New("replay")); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	<-ctx.Done()
	return nil
}

// Close stops the reporter, drains the collector and releases the sink and
// the journal.
func (s *Service) Close() error {
	if s.reporter != nil {
		<-s.reporter.Stop().Done()
	}
	s.Engine.Close()
	s.bus.Close()
	if s.collector != nil {
		<-s.collector
	}
	monitoring.Flush(2 * time.Second)
	return errors.Join(coremetrics.Close(s.sink), s.journal.Close())
}
