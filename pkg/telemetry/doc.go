// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for StackPilot.
package telemetry
