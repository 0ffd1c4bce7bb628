package app

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/railsched/config"
	"github.com/kilianp07/railsched/core/factory"
	"github.com/kilianp07/railsched/core/kpi"
	"github.com/kilianp07/railsched/infra/logger"
)

func moduleConfig(typ string) factory.ModuleConfig { return factory.ModuleConfig{Type: typ} }

type fakeSource struct {
	rep kpi.Report
	err error
}

func (f fakeSource) KPIs() (kpi.Report, error) { return f.rep, f.err }
func (f fakeSource) Improvement() (kpi.Improvement, error) {
	return kpi.Improvement{Punctuality: 12.5}, f.err
}

type captureLogger struct {
	logger.NopLogger
	mu     sync.Mutex
	infos  []string
	fields []map[string]any
}

func (c *captureLogger) Infof(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = append(c.infos, fmt.Sprintf(format, args...))
}

func (c *captureLogger) Debugw(_ string, f map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields = append(c.fields, f)
}

func TestReporterReport(t *testing.T) {
	log := &captureLogger{}
	src := fakeSource{rep: kpi.Report{ScheduleID: "s1", PunctualityRate: 75, AverageDelayMinutes: 3.5}}
	r, err := NewReporter(config.ReporterConfig{}, src, log)
	require.NoError(t, err)
	r.Report()
	require.Len(t, log.infos, 1)
	assert.Equal(t, "kpi s1: punctuality 75.00%, avg delay 3.50 min", log.infos[0])
	require.Len(t, log.fields, 1)
	assert.Equal(t, 12.5, log.fields[0]["punctuality_gain"])
}

func TestReporterSkipsWithoutSchedule(t *testing.T) {
	log := &captureLogger{}
	r, err := NewReporter(config.ReporterConfig{Schedule: "*/5 * * * *"}, fakeSource{err: errors.New("no schedule")}, log)
	require.NoError(t, err)
	r.Report()
	assert.Empty(t, log.infos)
	r.Start()
	<-r.Stop().Done()
}

func TestReporterBadSchedule(t *testing.T) {
	if _, err := NewReporter(config.ReporterConfig{Schedule: "whenever"}, fakeSource{}, nil); err == nil {
		t.Fatal("expected schedule error")
	}
}
