package metrics

import "errors"

// MultiSink fans observations out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordKPIs forwards the snapshot to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordKPIs(s KPISnapshot) error {
	for _, sink := range m.Sinks {
		if err := sink.RecordKPIs(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordOptimization forwards optimizer runs to the sinks supporting them.
func (m *MultiSink) RecordOptimization(r OptimizationRun) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(OptimizationRecorder); ok {
			if err := rec.RecordOptimization(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDisruption forwards disruption records to the sinks supporting them.
func (m *MultiSink) RecordDisruption(r DisruptionRecord) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(DisruptionRecorder); ok {
			if err := rec.RecordDisruption(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink holding resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, sink := range m.Sinks {
		errs = append(errs, Close(sink))
	}
	return errors.Join(errs...)
}

// Close releases the resources of sink when it holds any. Sinks may expose
// Close with or without an error result.
func Close(sink MetricsSink) error {
	switch c := sink.(type) {
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
