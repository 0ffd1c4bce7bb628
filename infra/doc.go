// Package infra contains technical adapters such as the MQTT publisher,
// metrics exporters and the KPI history store. These packages should
// depend only on the interfaces defined in the core packages.
package infra
