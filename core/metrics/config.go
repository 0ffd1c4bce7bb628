package metrics

import "github.com/kilianp07/railsched/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks" koanf:"sinks"`
	// PrometheusAddr exposes /metrics when non-empty, e.g. ":9090".
	PrometheusAddr string `json:"prometheus_addr" yaml:"prometheus_addr" koanf:"prometheus_addr"`
}
