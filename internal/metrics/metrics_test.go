package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })

	// Record some values so vector metrics appear in Gather()
	RecordEnqueued("echo", "normal")
	RecordFinished("echo", "completed")
	RecordRetry("echo", "network")
	ObserveExecution("echo", 20*time.Millisecond)
	ObserveQueueWait("echo", time.Millisecond)
	RecordError("network", "medium")
	RecordEventPublished("task_queued")
	RecordHandlerError("task_queued")
	RecordRateLimitWait("echo", 10*time.Millisecond)
	RecordRelay("published")

	families, err := reg.Gather()
	require.NoError(t, err)

	registered := make(map[string]bool)
	for _, mf := range families {
		registered[mf.GetName()] = true
	}

	for _, name := range []string{
		"docsmith_tasks_enqueued_total",
		"docsmith_tasks_finished_total",
		"docsmith_task_retries_total",
		"docsmith_task_duration_seconds",
		"docsmith_task_queue_wait_seconds",
		"docsmith_queue_depth",
		"docsmith_tasks_running",
		"docsmith_errors_total",
		"docsmith_events_published_total",
		"docsmith_event_handler_errors_total",
		"docsmith_ratelimit_waits_total",
		"docsmith_ratelimit_wait_seconds",
		"docsmith_relay_forwarded_total",
	} {
		assert.True(t, registered[name], "expected metric %s in registry", name)
	}
}

func TestRecordFinished(t *testing.T) {
	TasksFinishedTotal.Reset()

	tests := []struct {
		name   string
		status string
		calls  int
	}{
		{"single completion", "completed", 1},
		{"several failures", "failed", 3},
		{"one cancellation", "cancelled", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordFinished("render", tt.status)
			}
			got := testutil.ToFloat64(TasksFinishedTotal.WithLabelValues("render", tt.status))
			assert.Equal(t, float64(tt.calls), got)
		})
	}
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("rate_limit", "medium")
	RecordError("rate_limit", "medium")
	RecordError("system", "critical")

	assert.Equal(t, 2.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("rate_limit", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("system", "critical")))
}
