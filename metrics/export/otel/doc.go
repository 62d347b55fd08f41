// Package otel exports userauth engine counters through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. The validation latency histogram
// becomes one cumulative Int64ObservableGauge with an "le" attribute per bucket,
// plus a _count gauge. A single callback reads Engine.MetricsSnapshot on each
// collection; the caller owns the MeterProvider.
package otel
