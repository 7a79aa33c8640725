// Package audit implements async delivery of security events.
//
// # Components
//
//   - [Sink] for event consumers (channel, JSON writer, zap, fan-out, no-op).
//   - [Dispatcher], a buffered async relay that drops when full so the
//     request path never blocks on audit delivery.
//   - [Event], a structured record with type, severity, actor and metadata.
//
// This package owns buffering and delivery. Deciding which events to emit
// belongs to the gateway engine.
package audit
