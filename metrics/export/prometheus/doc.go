// Package prometheus renders userauth engine counters in the Prometheus text
// exposition format.
//
// Counters are named userauth_*_total. The only histogram is
// userauth_validate_latency_seconds. Nothing is registered globally; callers
// mount Handler wherever they serve /metrics.
package prometheus
