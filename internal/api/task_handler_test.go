package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/platform/logger"
	"github.com/phrazzld/docsmith/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *httptest.Server
	manager *task.Manager
	bus     *events.Bus
}

// newTestEnv wires a real bus and manager behind the router. When start is
// false the manager never runs workers, which keeps tasks pending.
func newTestEnv(t *testing.T, start bool) *testEnv {
	t.Helper()
	log := logger.Discard()

	reg := task.NewRegistry()
	require.NoError(t, reg.Register("echo", task.HandlerFunc(
		func(_ context.Context, payload map[string]any) (map[string]any, error) {
			return payload, nil
		})))
	require.NoError(t, reg.Register("broken", task.HandlerFunc(
		func(context.Context, map[string]any) (map[string]any, error) {
			return nil, fault.New(fault.KindRejected, "bad input")
		})))

	bus := events.NewBus(log, events.WithHistorySize(500))
	bus.Start()

	policy := fault.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	m := task.NewManager(reg, bus, nil, policy, log, task.WithDefaults(time.Second, 2, time.Millisecond))
	if start {
		require.NoError(t, m.Start(2))
	}

	h := NewTaskHandler(m, bus, log)
	promReg := prometheus.NewRegistry()
	metrics.MustRegister(promReg)
	srv := httptest.NewServer(NewRouter(h, promReg, log))

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
		bus.Stop()
	})
	return &testEnv{server: srv, manager: m, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (e *testEnv) waitStatus(t *testing.T, id string, want task.Status) task.Task {
	t.Helper()
	var got task.Task
	require.Eventually(t, func() bool {
		resp, data := e.do(t, http.MethodGet, "/api/v1/tasks/"+id, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		got = decode[task.Task](t, data)
		return got.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t, true)

	resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"type":     "echo",
		"payload":  map[string]any{"doc": "readme"},
		"priority": "high",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	created := decode[CreateTaskResponse](t, data)
	require.NotEmpty(t, created.TaskID)
	assert.Equal(t, task.StatusPending, created.Status)

	done := env.waitStatus(t, created.TaskID, task.StatusCompleted)
	assert.Equal(t, task.PriorityHigh, done.Priority)
	assert.Equal(t, "readme", done.Result["doc"])
}

func TestCreateTaskOptions(t *testing.T) {
	env := newTestEnv(t, false)

	resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"type":           "echo",
		"timeout_ms":     1500,
		"retry_delay_ms": 250,
		"max_retries":    5,
		"cost":           7,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))

	got, err := env.manager.GetStatus(decode[CreateTaskResponse](t, data).TaskID)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, got.Timeout)
	assert.Equal(t, 250*time.Millisecond, got.RetryDelayBase)
	assert.Equal(t, 5, got.MaxRetries)
	assert.Equal(t, 7, got.Cost)
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"missing type", map[string]any{"payload": map[string]any{}}, "Invalid Type: required field"},
		{"unknown priority", map[string]any{"type": "echo", "priority": "urgent"}, "Invalid Priority: invalid value"},
		{"negative timeout", map[string]any{"type": "echo", "timeout_ms": -5}, "Invalid TimeoutMS: too small"},
		{"negative retry delay", map[string]any{"type": "echo", "retry_delay_ms": -1}, "Invalid RetryDelayMS: too small"},
		{"negative retries", map[string]any{"type": "echo", "max_retries": -1}, "Invalid MaxRetries: too small"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
			body := decode[map[string]any](t, data)
			assert.Equal(t, tt.message, body["error"])
			assert.NotEmpty(t, body["trace_id"])
		})
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	resp, data := env.do(t, http.MethodGet, "/api/v1/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Task not found", decode[map[string]any](t, data)["error"])
}

func TestCancelTask(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.manager.Enqueue(context.Background(), "echo", nil)
	require.NoError(t, err)

	resp, data := env.do(t, http.MethodDelete, "/api/v1/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.True(t, decode[CancelTaskResponse](t, data).Cancelled)

	got, err := env.manager.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status)

	t.Run("already cancelled", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodDelete, "/api/v1/tasks/"+id, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown task", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodDelete, "/api/v1/tasks/missing", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestListTasks(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	var ids []string
	for range 3 {
		id, err := env.manager.Enqueue(ctx, "echo", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := env.manager.Cancel(ctx, ids[0])
	require.NoError(t, err)

	resp, data := env.do(t, http.MethodGet, "/api/v1/tasks?status=pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[ListTasksResponse](t, data)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, ids[1], list.Tasks[0].ID)
	assert.Equal(t, ids[2], list.Tasks[1].ID)

	resp, data = env.do(t, http.MethodGet, "/api/v1/tasks?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[ListTasksResponse](t, data)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, ids[2], list.Tasks[0].ID)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/tasks?status=sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCorrelation(t *testing.T) {
	env := newTestEnv(t, true)

	for _, tt := range []string{"echo", "echo", "broken"} {
		resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
			"type":           tt,
			"correlation_id": "batch-7",
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	}

	resp, data := env.do(t, http.MethodGet, "/api/v1/correlations/batch-7?wait_ms=2000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	body := decode[CorrelationResponse](t, data)
	assert.True(t, body.Summary.Done)
	assert.Equal(t, 3, body.Summary.Total)
	assert.Equal(t, 2, body.Summary.Completed)
	assert.Equal(t, 1, body.Summary.Failed)
	assert.Len(t, body.Tasks, 3)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/correlations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t, true)

	resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{"type": "echo"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decode[CreateTaskResponse](t, data).TaskID
	env.waitStatus(t, id, task.StatusCompleted)

	require.Eventually(t, func() bool {
		_, data := env.do(t, http.MethodGet, "/api/v1/events?type=task_completed", nil)
		return decode[ListEventsResponse](t, data).Count == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, data = env.do(t, http.MethodGet, "/api/v1/events?type=task_completed", nil)
	var raw struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Events, 1)
	assert.Equal(t, events.TypeTaskCompleted, raw.Events[0]["type"])
	assert.Equal(t, id, raw.Events[0]["payload"].(map[string]any)["task_id"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, true)

	resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{"type": "broken"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.waitStatus(t, decode[CreateTaskResponse](t, data).TaskID, task.StatusFailed)

	require.Eventually(t, func() bool {
		_, data := env.do(t, http.MethodGet, "/api/v1/stats", nil)
		stats := decode[StatsResponse](t, data)
		return stats.Errors[fault.KindRejected] == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, data = env.do(t, http.MethodGet, "/api/v1/stats", nil)
	stats := decode[StatsResponse](t, data)
	assert.Equal(t, uint64(1), stats.Queue.Enqueued)
	assert.Equal(t, uint64(1), stats.Queue.Failed)
	assert.Equal(t, []string{"broken", "echo"}, stats.TaskTypes)
	assert.NotZero(t, stats.Bus.Published)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, false)

	resp, data := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(data))

	resp, data = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(data), "docsmith_queue_depth"), "metrics output missing queue depth")
}

func TestStoppedManagerReturns503(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.manager.Stop(context.Background()))

	resp, data := env.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{"type": "echo"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(data))
}

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{task.ErrTaskNotFound, http.StatusNotFound},
		{task.ErrCorrelationNotFound, http.StatusNotFound},
		{task.ErrInvalidTask, http.StatusBadRequest},
		{task.ErrManagerStopped, http.StatusServiceUnavailable},
		{events.ErrBusStopped, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err), tt.err.Error())
	}
}
