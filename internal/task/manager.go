package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/ratelimit"
)

// Source is the event source of everything the manager publishes.
const Source = "queue_manager"

type managerState int

const (
	stateNew managerState = iota
	stateRunning
	stateStopping
	stateStopped
)

// Manager schedules tasks onto a pool of workers.
type Manager struct {
	registry  *Registry
	publisher events.Publisher
	limiter   ratelimit.Limiter
	policy    fault.Policy
	reporter  *fault.Reporter
	logger    *slog.Logger

	defaultTimeout    time.Duration
	defaultMaxRetries int
	defaultRetryBase  time.Duration
	retention         time.Duration
	sweepInterval     time.Duration

	// mu guards everything below it.
	mu           sync.Mutex
	state        managerState
	tasks        map[string]*Task
	correlations map[string][]string
	waiters      map[string][]chan struct{}
	queue        *priorityQueue
	timers       map[string]*time.Timer
	nextSeq      uint64
	running      int
	// inflight counts entries popped by a worker and not yet released.
	inflight int

	work    chan struct{}
	idle    chan struct{}
	stopped chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   counters
}

type counters struct {
	enqueued, completed, failed, cancelled, retried uint64
	execN, queueN                                   uint64
	execAvg, queueAvg                               float64
}

// NewManager creates a Manager. publisher may be nil; limiter defaults to
// ratelimit.Unlimited. Some events are published while the manager holds
// its lock, so publisher must not call back into the Manager synchronously.
func NewManager(
	registry *Registry,
	publisher events.Publisher,
	limiter ratelimit.Limiter,
	policy fault.Policy,
	logger *slog.Logger,
	opts ...Option,
) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:          registry,
		publisher:         publisher,
		limiter:           limiter,
		policy:            policy,
		logger:            logger.With("component", "queue_manager"),
		defaultTimeout:    DefaultTimeout,
		defaultMaxRetries: policy.MaxRetries,
		defaultRetryBase:  policy.BaseDelay,
		tasks:             make(map[string]*Task),
		correlations:      make(map[string][]string),
		waiters:           make(map[string][]chan struct{}),
		queue:             newPriorityQueue(),
		timers:            make(map[string]*time.Timer),
		work:              make(chan struct{}, 1),
		idle:              make(chan struct{}, 1),
		stopped:           make(chan struct{}),
		ctx:               ctx,
		cancel:            cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.reporter == nil {
		m.reporter = fault.NewReporter(publisher, nil, logger)
	}
	if m.defaultRetryBase <= 0 {
		m.defaultRetryBase = time.Second
	}
	return m
}

// Start launches workerCount workers. Calling Start on a running manager is
// a no-op; a stopped manager cannot be restarted.
func (m *Manager) Start(workerCount int) error {
	m.mu.Lock()
	switch m.state {
	case stateRunning:
		m.mu.Unlock()
		return nil
	case stateStopping, stateStopped:
		m.mu.Unlock()
		return ErrManagerStopped
	}

	if workerCount <= 0 {
		m.logger.Warn("invalid worker count, using 1", "requested", workerCount)
		workerCount = 1
	}

	m.state = stateRunning
	for i := range workerCount {
		m.wg.Add(1)
		go m.worker(i + 1)
	}
	if m.retention > 0 && m.sweepInterval > 0 {
		m.wg.Add(1)
		go m.sweeper()
	}
	if m.queue.len() > 0 {
		m.signalWork()
	}
	m.mu.Unlock()

	m.logger.Info("queue manager started", "workers", workerCount)
	m.emit(events.QueueManagerStarted{MaxConcurrentTasks: workerCount})
	return nil
}

// Stop refuses new work and waits until queued tasks, in-flight tasks and
// scheduled retries have drained. If ctx ends first, running handlers are
// cancelled and every task still waiting is cancelled. Stop is idempotent;
// concurrent callers wait for the first to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateStopping, stateStopped:
		m.mu.Unlock()
		select {
		case <-m.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	started := m.state == stateRunning
	m.state = stateStopping
	m.mu.Unlock()

	m.logger.Info("stopping queue manager")

	var stopErr error
	if started {
		stopErr = m.awaitIdle(ctx)
	}

	// Cancelling m.ctx ends worker loops and, when the drain timed out,
	// the handlers they are still running.
	m.cancel()
	m.wg.Wait()

	cancelled := m.cancelRemaining()
	if len(cancelled) > 0 {
		m.logger.Warn("cancelled unfinished tasks during shutdown", "count", len(cancelled))
	}

	m.mu.Lock()
	m.state = stateStopped
	m.mu.Unlock()
	close(m.stopped)

	m.emit(events.QueueManagerStopped{Metrics: m.Metrics()})
	m.logger.Info("queue manager stopped")
	return stopErr
}

func (m *Manager) awaitIdle(ctx context.Context) error {
	for {
		m.mu.Lock()
		idle := m.idleLocked()
		m.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-m.idle:
		case <-ctx.Done():
			m.logger.Warn("shutdown deadline reached before queue drained", "error", ctx.Err())
			return fmt.Errorf("queue did not drain: %w", ctx.Err())
		}
	}
}

func (m *Manager) idleLocked() bool {
	return m.queue.len() == 0 && m.inflight == 0 && len(m.timers) == 0
}

// cancelRemaining cancels queued tasks and scheduled retries. Workers must
// have exited.
func (m *Manager) cancelRemaining() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.queue.drain()
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
		ids = append(ids, id)
	}
	metrics.QueueDepth.Set(0)

	var out []Task
	now := time.Now()
	for _, id := range ids {
		t := m.tasks[id]
		if t == nil || t.Status.Terminal() {
			continue
		}
		t.Status = StatusCancelled
		t.CompletedAt = &now
		m.emit(events.TaskCancelled{TaskID: t.ID})
		m.finishedLocked(t)
		out = append(out, t.snapshot())
		metrics.RecordFinished(t.Type, string(StatusCancelled))
	}
	if len(out) > 0 {
		m.statsMu.Lock()
		m.stats.cancelled += uint64(len(out))
		m.statsMu.Unlock()
	}
	return out
}

// Enqueue records a new pending task and returns its id without waiting
// for it to run.
func (m *Manager) Enqueue(ctx context.Context, taskType string, payload map[string]any, opts ...EnqueueOption) (string, error) {
	if taskType == "" {
		return "", fmt.Errorf("%w: task type cannot be empty", ErrInvalidTask)
	}

	o := enqueueOptions{
		priority:       PriorityNormal,
		timeout:        m.defaultTimeout,
		maxRetries:     m.defaultMaxRetries,
		retryDelayBase: m.defaultRetryBase,
		cost:           1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case !o.priority.Valid():
		return "", fmt.Errorf("%w: priority %d out of range", ErrInvalidTask, int(o.priority))
	case o.maxRetries < 0:
		return "", fmt.Errorf("%w: max retries must not be negative", ErrInvalidTask)
	case o.timeout < 0:
		return "", fmt.Errorf("%w: timeout must not be negative", ErrInvalidTask)
	case o.retryDelayBase <= 0:
		return "", fmt.Errorf("%w: retry delay base must be positive", ErrInvalidTask)
	case o.cost < 0:
		return "", fmt.Errorf("%w: cost must not be negative", ErrInvalidTask)
	}

	t := &Task{
		ID:             uuid.NewString(),
		Type:           taskType,
		Priority:       o.priority,
		Payload:        payload,
		Status:         StatusPending,
		CorrelationID:  o.correlationID,
		MaxRetries:     o.maxRetries,
		RetryDelayBase: o.retryDelayBase,
		Timeout:        o.timeout,
		Cost:           o.cost,
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	if m.state == stateStopping || m.state == stateStopped {
		m.mu.Unlock()
		return "", ErrManagerStopped
	}
	m.nextSeq++
	t.seq = m.nextSeq
	m.tasks[t.ID] = t
	if t.CorrelationID != "" {
		m.correlations[t.CorrelationID] = append(m.correlations[t.CorrelationID], t.ID)
	}
	m.queue.push(t.ID, t.Priority)
	metrics.QueueDepth.Set(float64(m.queue.len()))
	// published under the lock so task_queued precedes task_started
	m.emit(events.TaskQueued{
		TaskID:        t.ID,
		Type:          t.Type,
		Priority:      int(t.Priority),
		CorrelationID: t.CorrelationID,
	})
	m.statsMu.Lock()
	m.stats.enqueued++
	m.statsMu.Unlock()
	if m.state == stateRunning {
		m.signalWork()
	}
	m.mu.Unlock()

	metrics.RecordEnqueued(t.Type, t.Priority.String())

	m.logger.DebugContext(ctx, "task enqueued",
		"task_id", t.ID,
		"task_type", t.Type,
		"priority", t.Priority.String(),
		"correlation_id", t.CorrelationID)
	return t.ID, nil
}

// GetStatus returns a snapshot of the task.
func (m *Manager) GetStatus(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.snapshot(), nil
}

// Cancel cancels a pending task. It reports false, leaving the task
// untouched, once the task has started or finished.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return false, ErrTaskNotFound
	}
	if t.Status != StatusPending {
		m.mu.Unlock()
		return false, nil
	}
	now := time.Now()
	t.Status = StatusCancelled
	t.CompletedAt = &now
	m.queue.remove(id)
	metrics.QueueDepth.Set(float64(m.queue.len()))
	m.statsMu.Lock()
	m.stats.cancelled++
	m.statsMu.Unlock()
	m.emit(events.TaskCancelled{TaskID: id})
	m.finishedLocked(t)
	taskType := t.Type
	m.mu.Unlock()

	metrics.RecordFinished(taskType, string(StatusCancelled))
	m.logger.InfoContext(ctx, "task cancelled", "task_id", id, "task_type", taskType)
	return true, nil
}

// List returns snapshots in creation order. An empty status lists all
// tasks.
func (m *Manager) List(status Status) []Task {
	m.mu.Lock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if status == "" || t.Status == status {
			out = append(out, t.snapshot())
		}
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Task) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// Metrics returns aggregate counters and rolling averages.
func (m *Manager) Metrics() events.QueueMetrics {
	m.mu.Lock()
	running := m.running
	queued := m.queue.len()
	m.mu.Unlock()

	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return events.QueueMetrics{
		Enqueued:             m.stats.enqueued,
		Completed:            m.stats.completed,
		Failed:               m.stats.failed,
		Cancelled:            m.stats.cancelled,
		Retried:              m.stats.retried,
		Running:              running,
		Queued:               queued,
		AverageExecutionTime: time.Duration(m.stats.execAvg),
		AverageQueueTime:     time.Duration(m.stats.queueAvg),
	}
}

// Registry exposes the handler registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// ErrorCounts returns failures seen so far, by kind.
func (m *Manager) ErrorCounts() map[fault.Kind]uint64 {
	return m.reporter.Tracker().Counts()
}

func (m *Manager) signalWork() {
	select {
	case m.work <- struct{}{}:
	default:
	}
}

func (m *Manager) signalIdle() {
	select {
	case m.idle <- struct{}{}:
	default:
	}
}

// finishedLocked wakes correlation waiters once every task sharing t's
// correlation id is terminal.
func (m *Manager) finishedLocked(t *Task) {
	if t.CorrelationID == "" {
		return
	}
	for _, id := range m.correlations[t.CorrelationID] {
		if other := m.tasks[id]; other != nil && !other.Status.Terminal() {
			return
		}
	}
	for _, ch := range m.waiters[t.CorrelationID] {
		close(ch)
	}
	delete(m.waiters, t.CorrelationID)
}

func (m *Manager) emit(p events.Payload) {
	if m.publisher == nil {
		return
	}
	if _, err := events.Emit(context.Background(), m.publisher, Source, p); err != nil {
		m.logger.Warn("failed to publish event", "event_type", p.EventType(), "error", err)
	}
}

func updateAverage(avg *float64, n *uint64, d time.Duration) {
	*n++
	*avg += (float64(d) - *avg) / float64(*n)
}
