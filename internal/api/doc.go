// Package api exposes the task queue over HTTP: submitting, inspecting and
// cancelling tasks, following correlation groups, and reading recent events
// and aggregate statistics. Request binding uses httpin; errors leaving the
// process are mapped to safe messages and redacted in logs.
package api
