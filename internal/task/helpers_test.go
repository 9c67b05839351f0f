package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

// recorder is a synchronous events.Publisher that keeps everything it sees.
type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(_ context.Context, ev *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(eventType string) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, ev := range r.events {
		if ev.Type() == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) typesFor(taskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if taskIDOf(ev.Payload()) == taskID {
			out = append(out, ev.Type())
		}
	}
	return out
}

func taskIDOf(p events.Payload) string {
	switch v := p.(type) {
	case events.TaskQueued:
		return v.TaskID
	case events.TaskStarted:
		return v.TaskID
	case events.TaskCompleted:
		return v.TaskID
	case events.TaskRetry:
		return v.TaskID
	case events.TaskFailed:
		return v.TaskID
	case events.TaskCancelled:
		return v.TaskID
	}
	return ""
}

func testPolicy() fault.Policy {
	return fault.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Multiplier: 2,
		MaxDelay:   10 * time.Millisecond,
	}
}

// newTestManager builds a manager with fast retries. It is stopped when the
// test ends.
func newTestManager(t *testing.T, reg *Registry, opts ...Option) (*Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithDefaults(time.Second, 3, time.Millisecond)}, opts...)
	m := NewManager(reg, rec, nil, testPolicy(), logger.Discard(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m, rec
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Task {
	t.Helper()
	var last Task
	require.Eventually(t, func() bool {
		task, err := m.GetStatus(id)
		if err != nil {
			return false
		}
		last = task
		return task.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task %s never reached %s (last status %s)", id, want, last.Status)
	return last
}

func registry(t *testing.T, handlers map[string]Handler) *Registry {
	t.Helper()
	reg := NewRegistry()
	for name, h := range handlers {
		require.NoError(t, reg.Register(name, h))
	}
	return reg
}

func echoHandler() HandlerFunc {
	return func(_ context.Context, payload map[string]any) (map[string]any, error) {
		return payload, nil
	}
}
