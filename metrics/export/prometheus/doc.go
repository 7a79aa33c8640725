// Package prometheus exposes goGuard engine metrics as a
// prometheus.Collector. Values are read from Engine.MetricsSnapshot at
// scrape time; the engine hot path never touches the Prometheus client.
package prometheus
