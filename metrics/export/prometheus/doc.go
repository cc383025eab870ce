// Package prometheus exposes goSession client metrics through client_golang.
//
// [Exporter] implements prometheus.Collector over a snapshot source such as
// goSession.Client. Counters are named gosession_*_total; refresh latency is the
// gosession_refresh_latency_seconds histogram. [Exporter.Handler] serves a private
// registry, so nothing is registered globally.
package prometheus
