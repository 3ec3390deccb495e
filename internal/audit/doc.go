// Package audit implements the append-only security event log: a
// structured [Event] model, pluggable [Sink] consumers, and a buffered
// async [Dispatcher] so that emitting an event can never block an
// authentication operation.
//
// The package owns buffering and delivery only. Deciding which events to
// emit belongs to the engine; filtering or suppressing events based on
// business logic does not happen here.
package audit
