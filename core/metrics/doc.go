// Package metrics defines the sinks that receive scheduling observations.
// Every sink records KPI snapshots; sinks may additionally implement
// OptimizationRecorder or DisruptionRecorder. PromSink and InfluxSink live in
// infra/metrics and register themselves with this package's factory. The
// factory returns a MultiSink automatically when several sinks are
// configured.
package metrics
