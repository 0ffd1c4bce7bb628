// Package events defines the engine events emitted on the event bus.
//
// Available event types:
//   - ScheduleEvent: a schedule was generated and became current
//   - OptimizationEvent: result of an optimizer run, accepted or not
//   - DisruptionEvent: a disruption was applied or resolved
package events
