// Package otel publishes goSession client metrics as OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads the client snapshot on
// each collection cycle. Callers own the MeterProvider.
package otel
