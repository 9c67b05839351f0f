package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
)

// Common errors that can be returned by the manager.
var (
	// ErrTaskNotFound is returned when no task has the requested id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrManagerStopped is returned when work is submitted after Stop.
	ErrManagerStopped = errors.New("queue manager is stopped")

	// ErrInvalidTask is returned when Enqueue receives unusable options.
	ErrInvalidTask = errors.New("invalid task")

	// ErrCorrelationNotFound is returned when no task carries the
	// requested correlation id.
	ErrCorrelationNotFound = errors.New("correlation not found")
)

// Priority orders work across tiers. Lower values are served first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

var priorityNames = [...]string{
	PriorityCritical:   "critical",
	PriorityHigh:       "high",
	PriorityNormal:     "normal",
	PriorityLow:        "low",
	PriorityBackground: "background",
}

// Valid reports whether p is one of the five tiers.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityBackground
}

func (p Priority) String() string {
	if !p.Valid() {
		return "priority(" + strconv.Itoa(int(p)) + ")"
	}
	return priorityNames[p]
}

// ParsePriority accepts a tier name or its numeric value.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range priorityNames {
		if name == s {
			return Priority(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Priority(n).Valid() {
		return Priority(n), nil
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, s)
}

// MarshalText renders the tier name.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: priority %d out of range", ErrInvalidTask, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts anything ParsePriority does.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetry     Status = "retry"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusRunning, StatusRetry, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Metrics is the per-task timing and retry record.
type Metrics = events.TaskMetrics

// Task is a snapshot of one unit of work. Values returned by the manager
// are copies; mutating them has no effect on the queue.
type Task struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Priority       Priority       `json:"priority"`
	Payload        map[string]any `json:"payload,omitempty"`
	Status         Status         `json:"status"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	MaxRetries     int            `json:"max_retries"`
	RetryDelayBase time.Duration  `json:"retry_delay_base"`
	Timeout        time.Duration  `json:"timeout"`
	Cost           int            `json:"cost"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      fault.Kind     `json:"error_kind,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Metrics        Metrics        `json:"metrics"`

	seq uint64
}

func (t *Task) snapshot() Task {
	cp := *t
	cp.Payload = maps.Clone(t.Payload)
	cp.Result = maps.Clone(t.Result)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return cp
}

// String gives a compact description for logs.
func (t Task) String() string {
	b, _ := json.Marshal(struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status Status `json:"status"`
	}{t.ID, t.Type, t.Status})
	return string(b)
}
