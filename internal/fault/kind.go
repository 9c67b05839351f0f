package fault

// Kind is the failure category.
type Kind string

const (
	KindRateLimit       Kind = "rate_limit"
	KindTokenLimit      Kind = "token_limit"
	KindProvider        Kind = "provider"
	KindNetwork         Kind = "network"
	KindQueueProcessing Kind = "queue_processing"
	KindEventBus        Kind = "event_bus"
	// KindRejected is a provider refusing the request itself (4xx other than
	// throttling). Resubmitting the same request cannot succeed.
	KindRejected Kind = "rejected"
	KindSystem   Kind = "system"
	KindUnknown  Kind = "unknown"
)

// Severity ranks how urgently a failure needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type kindInfo struct {
	severity Severity
	hint     string
}

var kinds = map[Kind]kindInfo{
	KindRateLimit:       {SeverityMedium, "wait for the rate limit window to reset"},
	KindTokenLimit:      {SeverityMedium, "reduce the request size or raise the cost budget"},
	KindProvider:        {SeverityHigh, "check provider status and credentials"},
	KindNetwork:         {SeverityMedium, "check connectivity to the remote service"},
	KindQueueProcessing: {SeverityHigh, "verify a handler is registered for the task type"},
	KindEventBus:        {SeverityMedium, "inspect the failing event subscriber"},
	KindRejected:        {SeverityHigh, "fix the request; resubmitting it unchanged will fail again"},
	KindSystem:          {SeverityCritical, "inspect the logs for the underlying fault"},
	KindUnknown:         {SeverityMedium, ""},
}

// DefaultSeverity returns the severity used when an error does not carry
// its own.
func (k Kind) DefaultSeverity() Severity {
	if info, ok := kinds[k]; ok {
		return info.severity
	}
	return SeverityMedium
}

// DefaultHint returns the recovery hint attached to errors of this kind.
func (k Kind) DefaultHint() string {
	return kinds[k].hint
}

// Kinds lists the known kinds.
func Kinds() []Kind {
	return []Kind{
		KindRateLimit, KindTokenLimit, KindProvider, KindNetwork,
		KindQueueProcessing, KindEventBus, KindRejected, KindSystem, KindUnknown,
	}
}
