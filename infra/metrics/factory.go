package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/railsched/core/factory"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
	"github.com/kilianp07/railsched/infra/kpi"
	"github.com/kilianp07/railsched/infra/mqtt"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})

	_ = coremetrics.RegisterMetricsSink("sqlite", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "railsched-kpi.db"
		}
		return kpi.NewSQLiteStore(c.Path)
	})

	_ = coremetrics.RegisterMetricsSink("mqtt", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c mqtt.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return mqtt.NewSink(c)
	})
}
