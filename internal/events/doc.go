// Package events provides the in-process publish/subscribe bus that
// decouples the queue manager and error reporter from whoever reacts to task
// lifecycle changes.
//
// Producers publish immutable Events carrying a typed Payload and never learn
// who consumes them. A single consumer goroutine delivers events in
// publication order, invoking every handler registered for the event type in
// registration order before moving to the next event.
//
// The primary components are:
// - Event: an immutable envelope around a validated Payload
// - Payload: one struct per event name (TaskQueued, TaskFailed, ErrorOccurred, ...)
// - Handler: interface for components that react to events
// - Bus: the FIFO dispatcher with history and subscriber registry
package events
