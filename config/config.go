// Package config loads the railsched configuration from a YAML or JSON file
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/railsched/core/disruption"
	"github.com/kilianp07/railsched/core/engine"
	"github.com/kilianp07/railsched/core/journal"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/core/optimizer"
	"github.com/kilianp07/railsched/core/scheduler"
	"github.com/kilianp07/railsched/infra/logger"
	"github.com/kilianp07/railsched/infra/monitoring"
)

// EnvPrefix marks environment overrides: RS_OPTIMIZER__SOLVER=propagation
// sets optimizer.solver.
const EnvPrefix = "RS_"

type Config struct {
	Logging    logger.Config     `json:"logging"`
	Scheduler  scheduler.Config  `json:"scheduler"`
	Optimizer  optimizer.Config  `json:"optimizer"`
	Disruption disruption.Config `json:"disruption"`
	KPI        kpi.Calculator    `json:"kpi"`
	Metrics    metrics.Config    `json:"metrics"`
	Journal    journal.Config    `json:"journal"`
	Reporter   ReporterConfig    `json:"reporter"`
	EventBus   EventBusConfig    `json:"event_bus"`
	API        APIConfig         `json:"api"`
	Monitoring monitoring.Config `json:"monitoring"`
}

// APIConfig controls the read-only HTTP endpoints served next to /metrics.
type APIConfig struct {
	Enabled bool `json:"enabled"`
	// Token, when set, is required as a bearer token by /api/journal.
	Token string `json:"token"`
}

// EventBusConfig sizes the subscriber buffers of the engine event bus.
type EventBusConfig struct {
	BufferSize int `json:"buffer_size"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{Optimizer: optimizer.DefaultConfig(), KPI: kpi.NewCalculator()}
	cfg.SetDefaults()
	return cfg
}

func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Disruption.SetDefaults()
	c.KPI.SetDefaults()
	c.Journal.SetDefaults()
	c.Reporter.SetDefaults()
	if c.EventBus.BufferSize == 0 {
		c.EventBus.BufferSize = 64
	}
}

func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	if err := c.Reporter.Validate(); err != nil {
		return err
	}
	if r := c.Monitoring.TracesSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("monitoring.traces_sample_rate must be within [0, 1]")
	}
	if c.EventBus.BufferSize < 0 {
		return fmt.Errorf("event_bus.buffer_size must not be negative")
	}
	return nil
}

// Engine extracts the settings of the scheduling engine.
func (c Config) Engine() engine.Config {
	return engine.Config{Scheduler: c.Scheduler, Optimizer: c.Optimizer, Disruption: c.Disruption, KPI: c.KPI}
}

// Load reads path, applies RS_ environment overrides, defaults and
// validation. An empty path loads the defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
