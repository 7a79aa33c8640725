package goGuard

import (
	"io"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
)

// AuditEvent is one structured security event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine. Emit must
// not block for long; slow sinks cause drops, never request latency.
type AuditSink = internalaudit.Sink

// AuditSeverity ranks audit events.
type AuditSeverity = internalaudit.Severity

const (
	SeverityInfo     = internalaudit.SeverityInfo
	SeverityLow      = internalaudit.SeverityLow
	SeverityMedium   = internalaudit.SeverityMedium
	SeverityHigh     = internalaudit.SeverityHigh
	SeverityCritical = internalaudit.SeverityCritical
)

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers events to a channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs events through zap at a level derived from their severity.
type ZapSink = internalaudit.ZapSink

// MultiSink fans out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink returns a ZapSink writing to logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
