package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ggicci/httpin"
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/docsmith/internal/api/shared"
	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/platform/logger"
	"github.com/phrazzld/docsmith/internal/task"
)

const (
	defaultEventLimit  = 100
	maxEventLimit      = 1000
	maxCorrelationWait = 30 * time.Second
)

// Queue is the part of the task manager the API exposes. *task.Manager
// satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, taskType string, payload map[string]any, opts ...task.EnqueueOption) (string, error)
	GetStatus(id string) (task.Task, error)
	Cancel(ctx context.Context, id string) (bool, error)
	List(status task.Status) []task.Task
	ByCorrelation(correlationID string) []task.Task
	Correlation(correlationID string) task.Summary
	WaitCorrelation(ctx context.Context, correlationID string) (task.Summary, error)
	Metrics() events.QueueMetrics
	ErrorCounts() map[fault.Kind]uint64
	Registry() *task.Registry
}

// EventLog is the part of the event bus the API exposes. *events.Bus
// satisfies it.
type EventLog interface {
	History(eventType string, limit int) []*events.Event
	Stats() events.BusStats
}

// TaskHandler serves the task, correlation, event and stats endpoints.
type TaskHandler struct {
	queue  Queue
	events EventLog
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(queue Queue, eventLog EventLog, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		queue:  queue,
		events: eventLog,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// Register mounts the handler's routes on r.
func (h *TaskHandler) Register(r chi.Router) {
	r.With(httpin.NewInput(CreateTaskRequest{})).Post("/tasks", h.CreateTask)
	r.With(httpin.NewInput(ListTasksRequest{})).Get("/tasks", h.ListTasks)
	r.With(httpin.NewInput(TaskRequest{})).Get("/tasks/{taskID}", h.GetTask)
	r.With(httpin.NewInput(TaskRequest{})).Delete("/tasks/{taskID}", h.CancelTask)
	r.With(httpin.NewInput(CorrelationRequest{})).Get("/correlations/{correlationID}", h.GetCorrelation)
	r.With(httpin.NewInput(ListEventsRequest{})).Get("/events", h.ListEvents)
	r.Get("/stats", h.Stats)
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	req := r.Context().Value(httpin.Input).(*CreateTaskRequest)

	if err := shared.ValidateRequest(&req.Body); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	var opts []task.EnqueueOption
	if req.Body.Priority != "" {
		p, err := task.ParsePriority(req.Body.Priority)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		opts = append(opts, task.WithPriority(p))
	}
	if req.Body.CorrelationID != "" {
		opts = append(opts, task.WithCorrelationID(req.Body.CorrelationID))
	}
	if req.Body.TimeoutMS > 0 {
		opts = append(opts, task.WithTimeout(time.Duration(req.Body.TimeoutMS)*time.Millisecond))
	}
	if req.Body.RetryDelayMS > 0 {
		opts = append(opts, task.WithRetryDelayBase(time.Duration(req.Body.RetryDelayMS)*time.Millisecond))
	}
	if req.Body.MaxRetries != nil {
		opts = append(opts, task.WithMaxRetries(*req.Body.MaxRetries))
	}
	if req.Body.Cost != nil {
		opts = append(opts, task.WithCost(*req.Body.Cost))
	}

	id, err := h.queue.Enqueue(r.Context(), req.Body.Type, req.Body.Payload, opts...)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to enqueue task")
		return
	}

	log.Debug("task accepted", slog.String("task_id", id), slog.String("task_type", req.Body.Type))
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{TaskID: id, Status: task.StatusPending})
}

// ListTasks handles GET /tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	req := r.Context().Value(httpin.Input).(*ListTasksRequest)

	var status task.Status
	if req.Status != "" {
		s, err := task.ParseStatus(req.Status)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid status filter", err)
			return
		}
		status = s
	}
	if req.Limit < 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}

	tasks := h.queue.List(status)
	if req.Limit > 0 && len(tasks) > req.Limit {
		tasks = tasks[len(tasks)-req.Limit:]
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ListTasksResponse{Tasks: tasks, Count: len(tasks)})
}

// GetTask handles GET /tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	req := r.Context().Value(httpin.Input).(*TaskRequest)

	t, err := h.queue.GetStatus(req.TaskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// CancelTask handles DELETE /tasks/{taskID}. Only pending tasks can be
// cancelled; anything else yields 409.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	req := r.Context().Value(httpin.Input).(*TaskRequest)

	ok, err := h.queue.Cancel(r.Context(), req.TaskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if !ok {
		shared.RespondWithError(w, r, http.StatusConflict, "Task is no longer pending")
		return
	}

	log.Info("task cancelled via API", slog.String("task_id", req.TaskID))
	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{TaskID: req.TaskID, Cancelled: true})
}

// GetCorrelation handles GET /correlations/{correlationID}.
func (h *TaskHandler) GetCorrelation(w http.ResponseWriter, r *http.Request) {
	req := r.Context().Value(httpin.Input).(*CorrelationRequest)

	var summary task.Summary
	if req.WaitMS > 0 {
		wait := min(time.Duration(req.WaitMS)*time.Millisecond, maxCorrelationWait)
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()

		s, err := h.queue.WaitCorrelation(ctx, req.CorrelationID)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			HandleAPIError(w, r, err, "")
			return
		}
		summary = s
	} else {
		summary = h.queue.Correlation(req.CorrelationID)
		if summary.Total == 0 {
			HandleAPIError(w, r, task.ErrCorrelationNotFound, "")
			return
		}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CorrelationResponse{
		Summary: summary,
		Tasks:   h.queue.ByCorrelation(req.CorrelationID),
	})
}

// ListEvents handles GET /events.
func (h *TaskHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	req := r.Context().Value(httpin.Input).(*ListEventsRequest)

	limit := req.Limit
	switch {
	case limit < 0:
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	case limit == 0:
		limit = defaultEventLimit
	case limit > maxEventLimit:
		limit = maxEventLimit
	}

	evs := h.events.History(req.Type, limit)
	shared.RespondWithJSON(w, r, http.StatusOK, ListEventsResponse{Events: evs, Count: len(evs)})
}

// Stats handles GET /stats.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{
		Queue:     h.queue.Metrics(),
		Bus:       h.events.Stats(),
		Errors:    h.queue.ErrorCounts(),
		TaskTypes: h.queue.Registry().Types(),
		Time:      time.Now().UTC(),
	})
}
