// Package fault classifies failures into a fixed taxonomy, decides whether
// they are worth retrying, and reports them as error.occurred events.
//
// The retry decision is a pure function of an Outcome (success flag, kind,
// severity) and the attempt budget: callers never branch on error strings.
// Only an allow-list of transient kinds (rate_limit, provider, network) is
// retried by default.
package fault
