// Package metrics exposes simulator counters and gauges to Prometheus.
//
// The scheduler updates the collectors after every tick and the API serves
// them on /metrics.
package metrics
