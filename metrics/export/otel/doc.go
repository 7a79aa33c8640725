// Package otel publishes goGuard engine metrics through an OpenTelemetry
// meter using observable instruments read at collection time.
package otel
