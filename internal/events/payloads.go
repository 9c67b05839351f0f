package events

import "time"

// Event names published by the core.
const (
	TypeTaskQueued    = "task_queued"
	TypeTaskStarted   = "task_started"
	TypeTaskCompleted = "task_completed"
	TypeTaskRetry     = "task_retry"
	TypeTaskFailed    = "task_failed"
	TypeTaskCancelled = "task_cancelled"

	TypeErrorOccurred = "error.occurred"

	TypeQueueStarted = "queue_manager.started"
	TypeQueueStopped = "queue_manager.stopped"
)

var reserved = map[string]bool{
	TypeTaskQueued:    true,
	TypeTaskStarted:   true,
	TypeTaskCompleted: true,
	TypeTaskRetry:     true,
	TypeTaskFailed:    true,
	TypeTaskCancelled: true,
	TypeErrorOccurred: true,
	TypeQueueStarted:  true,
	TypeQueueStopped:  true,
	AllTypes:          true,
}

// IsReserved reports whether name belongs to a typed payload.
func IsReserved(name string) bool { return reserved[name] }

// TaskMetrics is the per-task timing and retry record.
type TaskMetrics struct {
	RetryCount    int           `json:"retry_count" validate:"gte=0"`
	ExecutionTime time.Duration `json:"execution_time"`
	QueueTime     time.Duration `json:"queue_time"`
	ErrorCount    int           `json:"error_count" validate:"gte=0"`
}

// QueueMetrics is the aggregate view of the queue manager.
type QueueMetrics struct {
	Enqueued             uint64        `json:"enqueued"`
	Completed            uint64        `json:"completed"`
	Failed               uint64        `json:"failed"`
	Cancelled            uint64        `json:"cancelled"`
	Retried              uint64        `json:"retried"`
	Running              int           `json:"running"`
	Queued               int           `json:"queued"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	AverageQueueTime     time.Duration `json:"average_queue_time"`
}

type TaskQueued struct {
	TaskID        string `json:"task_id" validate:"required"`
	Type          string `json:"type" validate:"required"`
	Priority      int    `json:"priority" validate:"gte=0,lte=4"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (TaskQueued) EventType() string { return TypeTaskQueued }

type TaskStarted struct {
	TaskID        string `json:"task_id" validate:"required"`
	Type          string `json:"type" validate:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (TaskStarted) EventType() string { return TypeTaskStarted }

type TaskCompleted struct {
	TaskID        string         `json:"task_id" validate:"required"`
	Result        map[string]any `json:"result"`
	Metrics       TaskMetrics    `json:"metrics"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

func (TaskCompleted) EventType() string { return TypeTaskCompleted }

type TaskRetry struct {
	TaskID        string `json:"task_id" validate:"required"`
	RetryCount    int    `json:"retry_count" validate:"gte=1"`
	Error         string `json:"error" validate:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (TaskRetry) EventType() string { return TypeTaskRetry }

type TaskFailed struct {
	TaskID        string      `json:"task_id" validate:"required"`
	Error         string      `json:"error" validate:"required"`
	Metrics       TaskMetrics `json:"metrics"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

func (TaskFailed) EventType() string { return TypeTaskFailed }

type TaskCancelled struct {
	TaskID string `json:"task_id" validate:"required"`
}

func (TaskCancelled) EventType() string { return TypeTaskCancelled }

// ErrorOccurred reports a classified failure. Category and Severity carry
// the string forms of the fault taxonomy.
type ErrorOccurred struct {
	Message      string         `json:"message" validate:"required"`
	Category     string         `json:"category" validate:"required"`
	Severity     string         `json:"severity" validate:"required,oneof=critical high medium low"`
	Context      map[string]any `json:"context,omitempty"`
	RecoveryHint string         `json:"recovery_hint,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (ErrorOccurred) EventType() string { return TypeErrorOccurred }

type QueueManagerStarted struct {
	MaxConcurrentTasks int `json:"max_concurrent_tasks" validate:"gt=0"`
}

func (QueueManagerStarted) EventType() string { return TypeQueueStarted }

type QueueManagerStopped struct {
	Metrics QueueMetrics `json:"metrics"`
}

func (QueueManagerStopped) EventType() string { return TypeQueueStopped }

// Generic carries application-defined events such as documentation.ready.
// Its Name must not collide with a typed event.
type Generic struct {
	Name string         `json:"name" validate:"required"`
	Data map[string]any `json:"data,omitempty"`
}

func (g Generic) EventType() string { return g.Name }
