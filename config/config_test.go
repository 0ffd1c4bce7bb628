package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `logging:
  level: debug
  format: console
scheduler:
  track_buffer_minutes: 10
optimizer:
  solver: propagation
  time_budget_seconds: 5
disruption:
  cascade_delay_minutes: 20
kpi:
  window_hours: 12
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
    - type: "influx"
      conf:
        url: "http://influx:8086"
        org: "rail"
journal:
  backend: sqlite
  path: /tmp/journal.db
reporter:
  enabled: true
  schedule: "*/5 * * * *"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.format", cfg.Logging.Format, "console"},
		{"scheduler.track_buffer_minutes", *cfg.Scheduler.TrackBufferMinutes, 10},
		{"scheduler.platform_buffer_minutes", *cfg.Scheduler.PlatformBufferMinutes, 5},
		{"optimizer.solver", cfg.Optimizer.Solver, "propagation"},
		{"optimizer.time_budget_seconds", cfg.Optimizer.TimeBudgetSeconds, 5},
		{"optimizer.enabled", cfg.Optimizer.Enabled, true},
		{"optimizer.horizon_hours", cfg.Optimizer.HorizonHours, 48},
		{"disruption.cascade_delay_minutes", cfg.Disruption.CascadeDelayMinutes, 20},
		{"disruption.breakdown_high_minutes", cfg.Disruption.BreakdownHighMinutes, 60},
		{"kpi.window_hours", cfg.KPI.WindowHours, 12.0},
		{"kpi.on_time_threshold_minutes", cfg.KPI.OnTimeThresholdMinutes, 5.0},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"metrics.sinks", len(cfg.Metrics.Sinks), 2},
		{"metrics.sinks[1].type", cfg.Metrics.Sinks[1].Type, "influx"},
		{"metrics.sinks[1].conf.org", cfg.Metrics.Sinks[1].Conf["org"], "rail"},
		{"journal.backend", cfg.Journal.Backend, "sqlite"},
		{"reporter.enabled", cfg.Reporter.Enabled, true},
		{"event_bus.buffer_size", cfg.EventBus.BufferSize, 64},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
	assert.Equal(t, cfg.Scheduler, cfg.Engine().Scheduler)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", `{"optimizer": {"solver": "lp"}}`)
	t.Setenv("RS_OPTIMIZER__SOLVER", "propagation")
	t.Setenv("RS_OPTIMIZER__ENABLED", "false")
	t.Setenv("RS_JOURNAL__BACKEND", "jsonl")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "propagation", cfg.Optimizer.Solver)
	assert.False(t, cfg.Optimizer.Enabled)
	assert.Equal(t, "jsonl", cfg.Journal.Backend)
	assert.Equal(t, "railsched-journal.jsonl", cfg.Journal.Path)
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	path := writeFile(t, "config.yaml", `scheduler:
  track_buffer_minutes: 0
optimizer:
  stability_weight: 0
`)
	t.Setenv("RS_SCHEDULER__PLATFORM_BUFFER_MINUTES", "0")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Scheduler.TrackBufferMinutes)
	assert.Equal(t, 0, *cfg.Scheduler.TrackBufferMinutes)
	assert.Equal(t, 0, *cfg.Scheduler.PlatformBufferMinutes)
	assert.Zero(t, cfg.Scheduler.Buffers())
	require.NotNil(t, cfg.Optimizer.StabilityWeight)
	assert.Equal(t, 0.0, *cfg.Optimizer.StabilityWeight)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.True(t, cfg.Optimizer.Enabled)
	assert.Equal(t, "none", cfg.Journal.Backend)
	assert.Equal(t, "@every 1m", cfg.Reporter.Schedule)
}

func TestLoadRejects(t *testing.T) {
	if _, err := Load(writeFile(t, "config.toml", "")); err == nil {
		t.Fatal("expected unsupported format error")
	}
	bad := map[string]string{
		"solver":   `{"optimizer": {"solver": "cp-sat"}}`,
		"buffer":   `{"scheduler": {"track_buffer_minutes": -1}}`,
		"journal":  `{"journal": {"backend": "postgres"}}`,
		"reporter": `{"reporter": {"schedule": "every tuesday"}}`,
		"level":    `{"logging": {"level": "loud"}}`,
	}
	for name, data := range bad {
		if _, err := Load(writeFile(t, "config.json", data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
