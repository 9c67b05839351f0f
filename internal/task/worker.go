package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	logger := m.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		taskID, ok := m.next()
		if !ok {
			logger.Debug("worker stopping")
			return
		}
		m.serve(logger, taskID)
	}
}

// next blocks until an entry can be popped or the manager shuts down.
func (m *Manager) next() (string, bool) {
	for {
		if m.ctx.Err() != nil {
			return "", false
		}
		m.mu.Lock()
		if id, ok := m.queue.pop(); ok {
			m.inflight++
			metrics.QueueDepth.Set(float64(m.queue.len()))
			if m.queue.len() > 0 {
				// pass the baton so another idle worker picks up the rest
				m.signalWork()
			}
			m.mu.Unlock()
			return id, true
		}
		m.mu.Unlock()

		select {
		case <-m.work:
		case <-m.ctx.Done():
			return "", false
		}
	}
}

// serve processes one popped entry. A panic in the processing path is
// logged and the task, if it was already running, is failed.
func (m *Manager) serve(logger *slog.Logger, taskID string) {
	defer func() {
		m.mu.Lock()
		m.inflight--
		if m.idleLocked() {
			m.signalIdle()
		}
		m.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered from panic while processing task",
				"task_id", taskID,
				"panic", r,
				"stack", string(debug.Stack()))
			m.fail(context.Background(), taskID, fault.New(fault.KindSystem, fmt.Sprintf("worker panic: %v", r)), 0)
		}
	}()

	m.process(logger, taskID)
}

func (m *Manager) process(logger *slog.Logger, taskID string) {
	t, ok := m.claim(taskID)
	if !ok {
		logger.Debug("skipping task that is no longer pending", "task_id", taskID)
		return
	}

	logger = logger.With("task_id", t.ID, "task_type", t.Type)
	logger.Debug("processing task", "retry_count", t.Metrics.RetryCount)
	m.emit(events.TaskStarted{TaskID: t.ID, Type: t.Type, CorrelationID: t.CorrelationID})

	ctx, span := tracing.StartSpan(m.ctx, "task.execute",
		attribute.String("task.id", t.ID),
		attribute.String("task.type", t.Type),
		attribute.String("task.priority", t.Priority.String()),
		attribute.Int("task.retry_count", t.Metrics.RetryCount),
	)
	defer span.End()

	handler, err := m.registry.Get(t.Type)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		m.handleFailure(ctx, logger, t.ID, fault.Wrap(fault.KindQueueProcessing, err), 0)
		return
	}

	if err := m.limiter.Acquire(ctx, t.Type, t.Cost); err != nil {
		tracing.SetSpanError(ctx, err)
		m.handleFailure(ctx, logger, t.ID, fmt.Errorf("rate limit: %w", err), 0)
		return
	}
	tracing.AddSpanEvent(ctx, "rate_limit.acquired", attribute.Int("cost", t.Cost))

	start := time.Now()
	result, err := m.execute(ctx, handler, t)
	elapsed := time.Since(start)
	metrics.ObserveExecution(t.Type, elapsed)

	if err != nil {
		tracing.SetSpanError(ctx, err)
		m.handleFailure(ctx, logger, t.ID, err, elapsed)
		return
	}
	m.complete(ctx, logger, t.ID, result, elapsed)
}

// claim moves a pending task to running.
func (m *Manager) claim(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Status != StatusPending {
		return Task{}, false
	}
	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
	t.Metrics.QueueTime = now.Sub(t.CreatedAt)
	m.running++
	metrics.TasksRunning.Inc()
	metrics.ObserveQueueWait(t.Type, t.Metrics.QueueTime)

	m.statsMu.Lock()
	updateAverage(&m.stats.queueAvg, &m.stats.queueN, t.Metrics.QueueTime)
	m.statsMu.Unlock()

	return t.snapshot(), true
}

type attemptResult struct {
	result map[string]any
	err    error
}

// execute runs the handler under the task timeout. A handler that ignores
// its context is abandoned once the deadline passes.
func (m *Manager) execute(ctx context.Context, h Handler, t Task) (map[string]any, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
	}
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fault.New(fault.KindSystem, fmt.Sprintf("handler panic: %v", r),
					fault.WithContext(map[string]any{"task_type": t.Type}))}
			}
		}()
		res, err := h.Handle(runCtx, t.Payload)
		done <- attemptResult{result: res, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-runCtx.Done():
		if ctx.Err() == nil {
			return nil, fmt.Errorf("task exceeded timeout of %s: %w", t.Timeout, runCtx.Err())
		}
		return nil, fmt.Errorf("task interrupted by shutdown: %w", ctx.Err())
	}
}

func (m *Manager) complete(ctx context.Context, logger *slog.Logger, id string, result map[string]any, elapsed time.Duration) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusRunning {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	t.Status = StatusCompleted
	t.Result = result
	t.CompletedAt = &now
	t.Metrics.ExecutionTime = elapsed
	m.running--
	snap := t.snapshot()
	m.statsMu.Lock()
	m.stats.completed++
	updateAverage(&m.stats.execAvg, &m.stats.execN, elapsed)
	m.statsMu.Unlock()
	m.emit(events.TaskCompleted{
		TaskID:        snap.ID,
		Result:        snap.Result,
		Metrics:       snap.Metrics,
		CorrelationID: snap.CorrelationID,
	})
	m.finishedLocked(t)
	m.mu.Unlock()

	metrics.TasksRunning.Dec()
	metrics.RecordFinished(snap.Type, string(StatusCompleted))

	logger.InfoContext(ctx, "task completed",
		"duration_ms", elapsed.Milliseconds(),
		"retry_count", snap.Metrics.RetryCount)
}

// handleFailure classifies err and either schedules a retry or fails the
// task for good.
func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, id string, err error, elapsed time.Duration) {
	outcome := fault.Classify(err)

	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusRunning {
		m.mu.Unlock()
		return
	}
	decision := m.policy.Decide(outcome, t.Metrics.RetryCount, t.MaxRetries, t.RetryDelayBase)
	if !decision.Retry || m.ctx.Err() != nil {
		m.mu.Unlock()
		m.fail(ctx, id, err, elapsed)
		return
	}

	msg := fault.Describe(err, outcome.Kind)
	t.Status = StatusRetry
	t.Error = msg
	t.ErrorKind = outcome.Kind
	t.Metrics.ErrorCount++
	t.Metrics.ExecutionTime = elapsed
	t.Metrics.RetryCount = decision.RetryCount
	m.running--
	m.timers[id] = time.AfterFunc(decision.Delay, func() { m.requeue(id) })
	snap := t.snapshot()
	m.statsMu.Lock()
	m.stats.retried++
	m.statsMu.Unlock()
	m.emit(events.TaskRetry{
		TaskID:        snap.ID,
		RetryCount:    snap.Metrics.RetryCount,
		Error:         msg,
		CorrelationID: snap.CorrelationID,
	})
	m.mu.Unlock()

	metrics.TasksRunning.Dec()
	metrics.RecordRetry(snap.Type, string(outcome.Kind))
	m.reporter.Tracker().Track(outcome.Kind, outcome.Severity)

	logger.WarnContext(ctx, "task failed, scheduling retry",
		"error", msg,
		"kind", outcome.Kind,
		"retry_count", snap.Metrics.RetryCount,
		"max_retries", snap.MaxRetries,
		"delay", decision.Delay)
}

// fail moves a running task to failed and reports the error.
func (m *Manager) fail(ctx context.Context, id string, err error, elapsed time.Duration) {
	outcome := fault.Classify(err)
	msg := fault.Describe(err, outcome.Kind)

	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusRunning {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	t.Status = StatusFailed
	t.Error = msg
	t.ErrorKind = outcome.Kind
	t.CompletedAt = &now
	t.Metrics.ErrorCount++
	t.Metrics.ExecutionTime = elapsed
	m.running--
	snap := t.snapshot()
	m.statsMu.Lock()
	m.stats.failed++
	m.statsMu.Unlock()
	m.emit(events.TaskFailed{
		TaskID:        snap.ID,
		Error:         msg,
		Metrics:       snap.Metrics,
		CorrelationID: snap.CorrelationID,
	})
	m.finishedLocked(t)
	m.mu.Unlock()

	metrics.TasksRunning.Dec()
	metrics.RecordFinished(snap.Type, string(StatusFailed))

	opts := []fault.Option{
		fault.WithSeverity(outcome.Severity),
		fault.WithContext(map[string]any{
			"task_id":        snap.ID,
			"task_type":      snap.Type,
			"correlation_id": snap.CorrelationID,
			"retry_count":    snap.Metrics.RetryCount,
		}),
	}
	if fe := fault.As(err); fe != nil && fe.RecoveryHint != "" {
		opts = append(opts, fault.WithHint(fe.RecoveryHint))
	}
	_ = m.reporter.Report(ctx, fault.Wrap(outcome.Kind, err, opts...))
}

// requeue returns a task whose backoff elapsed to the back of its tier.
func (m *Manager) requeue(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.timers[id]; !ok {
		return
	}
	delete(m.timers, id)

	t, ok := m.tasks[id]
	if !ok || t.Status != StatusRetry {
		if m.idleLocked() {
			m.signalIdle()
		}
		return
	}
	t.Status = StatusPending
	m.queue.push(id, t.Priority)
	metrics.QueueDepth.Set(float64(m.queue.len()))
	m.signalWork()
	m.logger.Debug("task requeued", "task_id", id, "retry_count", t.Metrics.RetryCount)
}
