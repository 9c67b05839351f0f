// Package metrics holds the prometheus collectors shared by the queue
// manager, event bus, rate limiter, error classifier and relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_tasks_enqueued_total",
			Help: "Total number of tasks accepted by the queue manager.",
		},
		[]string{"type", "priority"},
	)

	TasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal status.",
		},
		[]string{"type", "status"}, // completed, failed, cancelled
	)

	TaskRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_task_retries_total",
			Help: "Total number of task retries by error kind.",
		},
		[]string{"type", "kind"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsmith_task_duration_seconds",
			Help:    "Handler execution time per attempt.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		},
		[]string{"type"},
	)

	TaskQueueWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsmith_task_queue_wait_seconds",
			Help:    "Time between task creation and the start of its latest attempt.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 18),
		},
		[]string{"type"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsmith_queue_depth",
			Help: "Number of entries waiting in the priority queue.",
		},
	)

	TasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsmith_tasks_running",
			Help: "Number of tasks currently executing.",
		},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_errors_total",
			Help: "Total number of classified failures.",
		},
		[]string{"kind", "severity"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_events_published_total",
			Help: "Total number of events accepted by the bus.",
		},
		[]string{"type"},
	)

	EventHandlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_event_handler_errors_total",
			Help: "Total number of event handler failures, panics included.",
		},
		[]string{"type"},
	)

	RateLimitWaitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_ratelimit_waits_total",
			Help: "Number of acquisitions that had to wait for budget.",
		},
		[]string{"resource"},
	)

	RateLimitWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsmith_ratelimit_wait_seconds",
			Help:    "Time spent waiting for rate limit budget.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"resource"},
	)

	RelayForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsmith_relay_forwarded_total",
			Help: "Number of bus events handed to the relay, by outcome.",
		},
		[]string{"status"}, // published, dropped, failed
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		TasksEnqueuedTotal, TasksFinishedTotal, TaskRetriesTotal,
		TaskDuration, TaskQueueWait, QueueDepth, TasksRunning,
		ErrorsTotal, EventsPublishedTotal, EventHandlerErrorsTotal,
		RateLimitWaitsTotal, RateLimitWait, RelayForwardedTotal,
	)
}

func RecordEnqueued(taskType, priority string) {
	TasksEnqueuedTotal.WithLabelValues(taskType, priority).Inc()
}

func RecordFinished(taskType, status string) {
	TasksFinishedTotal.WithLabelValues(taskType, status).Inc()
}

func RecordRetry(taskType, kind string) {
	TaskRetriesTotal.WithLabelValues(taskType, kind).Inc()
}

func ObserveExecution(taskType string, d time.Duration) {
	TaskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func ObserveQueueWait(taskType string, d time.Duration) {
	TaskQueueWait.WithLabelValues(taskType).Observe(d.Seconds())
}

func RecordError(kind, severity string) {
	ErrorsTotal.WithLabelValues(kind, severity).Inc()
}

func RecordEventPublished(eventType string) {
	EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func RecordHandlerError(eventType string) {
	EventHandlerErrorsTotal.WithLabelValues(eventType).Inc()
}

func RecordRateLimitWait(resource string, d time.Duration) {
	RateLimitWaitsTotal.WithLabelValues(resource).Inc()
	RateLimitWait.WithLabelValues(resource).Observe(d.Seconds())
}

func RecordRelay(status string) {
	RelayForwardedTotal.WithLabelValues(status).Inc()
}
