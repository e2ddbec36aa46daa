// Package prometheus exposes Engine metrics as a prometheus.Collector.
//
// Counters are named teamgate_*_total; login latency is the histogram
// teamgate_login_latency_seconds. [Handler] serves a dedicated registry
// holding the collector plus the Go and process collectors, so nothing is
// registered globally.
package prometheus
