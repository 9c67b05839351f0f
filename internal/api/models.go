package api

import (
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/task"
)

// CreateTaskBody is the JSON body of POST /api/v1/tasks.
type CreateTaskBody struct {
	Type          string         `json:"type"           validate:"required,max=128"`
	Payload       map[string]any `json:"payload"`
	Priority      string         `json:"priority"       validate:"omitempty,oneof=critical high normal low background"`
	CorrelationID string         `json:"correlation_id" validate:"max=256"`
	// TimeoutMS bounds each attempt; zero keeps the server default.
	TimeoutMS int64 `json:"timeout_ms" validate:"gte=0"`
	// RetryDelayMS is the backoff base; zero keeps the server default.
	RetryDelayMS int64 `json:"retry_delay_ms" validate:"gte=0"`
	MaxRetries   *int  `json:"max_retries"    validate:"omitempty,gte=0,lte=100"`
	Cost         *int  `json:"cost"           validate:"omitempty,gte=0"`
}

// CreateTaskRequest binds the request body.
type CreateTaskRequest struct {
	Body CreateTaskBody `in:"body=json"`
}

// CreateTaskResponse is returned once a task is accepted.
type CreateTaskResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// ListTasksRequest filters GET /api/v1/tasks.
type ListTasksRequest struct {
	Status string `in:"query=status"`
	Limit  int    `in:"query=limit"`
}

// ListTasksResponse lists task snapshots.
type ListTasksResponse struct {
	Tasks []task.Task `json:"tasks"`
	Count int         `json:"count"`
}

// TaskRequest addresses one task by path.
type TaskRequest struct {
	TaskID string `in:"path=taskID"`
}

// CancelTaskResponse reports the outcome of DELETE /api/v1/tasks/{taskID}.
type CancelTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// CorrelationRequest addresses a correlation group. Wait, when positive,
// blocks up to that many milliseconds for the group to finish.
type CorrelationRequest struct {
	CorrelationID string `in:"path=correlationID"`
	WaitMS        int64  `in:"query=wait_ms"`
}

// CorrelationResponse summarises a correlation group.
type CorrelationResponse struct {
	Summary task.Summary `json:"summary"`
	Tasks   []task.Task  `json:"tasks"`
}

// ListEventsRequest filters GET /api/v1/events.
type ListEventsRequest struct {
	Type  string `in:"query=type"`
	Limit int    `in:"query=limit"`
}

// ListEventsResponse lists recent bus events, oldest first.
type ListEventsResponse struct {
	Events []*events.Event `json:"events"`
	Count  int             `json:"count"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Queue     events.QueueMetrics   `json:"queue"`
	Bus       events.BusStats       `json:"bus"`
	Errors    map[fault.Kind]uint64 `json:"errors"`
	TaskTypes []string              `json:"task_types"`
	Time      time.Time             `json:"time"`
}
