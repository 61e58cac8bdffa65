// Package telemetry provides the observability layer for siteforge:
// structured logging (zerolog), Prometheus metrics, OpenTelemetry tracing,
// and the event publisher that broadcasts state transitions to interested
// listeners.
package telemetry
