// Package audit relays session lifecycle events to caller-supplied sinks.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher] is a buffered async relay that either drops or blocks when full.
//     Critical event types always wait for space; drops are counted per type.
//   - [Event] is one record: identifier, type, subject, refresh flight, outcome.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. Which events exist and when they fire
// is decided by the goSession client.
//
// # What this package must NOT do
//
//   - Filter events.
//   - Import goSession or any sibling internal package.
//   - Carry credential values; events never include tokens.
package audit
