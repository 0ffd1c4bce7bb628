package metrics

import (
	"path/filepath"
	"testing"

	"github.com/kilianp07/railsched/core/factory"
	coremetrics "github.com/kilianp07/railsched/core/metrics"
)

func TestRegisteredSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.db")
	sink, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{
		{Type: "nop"},
		{Type: "sqlite", Conf: map[string]any{"path": path}},
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := coremetrics.Close(sink); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "mqtt"}}); err == nil {
		t.Fatalf("expected mqtt sink without broker to fail")
	}
}
