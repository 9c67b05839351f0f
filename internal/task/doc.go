// Package task runs application work asynchronously on a pool of workers.
//
// A Manager owns a priority queue of tasks and a table of their states.
// Handlers are looked up by task type in a Registry; every attempt is
// rate-limited, classified on failure and retried with exponential backoff
// when the failure is transient. Each lifecycle transition is published on
// the event bus so callers can observe progress without polling.
package task
