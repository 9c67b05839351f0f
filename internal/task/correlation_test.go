package task

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitCorrelation(t *testing.T) {
	reg := registry(t, map[string]Handler{
		"echo": echoHandler(),
		"fail": HandlerFunc(func(context.Context, map[string]any) (map[string]any, error) {
			return nil, fault.New(fault.KindRejected, "nope")
		}),
	})
	m, _ := newTestManager(t, reg)
	require.NoError(t, m.Start(2))

	ctx := context.Background()
	for _, taskType := range []string{"echo", "echo", "fail"} {
		_, err := m.Enqueue(ctx, taskType, nil, WithCorrelationID("batch-7"))
		require.NoError(t, err)
	}
	_, err := m.Enqueue(ctx, "echo", nil, WithCorrelationID("other"))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	summary, err := m.WaitCorrelation(waitCtx, "batch-7")
	require.NoError(t, err)

	assert.Equal(t, Summary{
		CorrelationID: "batch-7",
		Total:         3,
		Completed:     2,
		Failed:        1,
		Done:          true,
	}, summary)

	tasks := m.ByCorrelation("batch-7")
	require.Len(t, tasks, 3)
	assert.Equal(t, "echo", tasks[0].Type)
	assert.Equal(t, "fail", tasks[2].Type)
}

func TestWaitCorrelation_Unknown(t *testing.T) {
	m, _ := newTestManager(t, NewRegistry())

	_, err := m.WaitCorrelation(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrCorrelationNotFound)
	assert.Equal(t, Summary{CorrelationID: "ghost"}, m.Correlation("ghost"))
	assert.Empty(t, m.ByCorrelation("ghost"))
}

func TestWaitCorrelation_ContextDone(t *testing.T) {
	m, _ := newTestManager(t, NewRegistry())

	// never started, so the task stays pending
	_, err := m.Enqueue(context.Background(), "echo", nil, WithCorrelationID("stalled"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	summary, err := m.WaitCorrelation(ctx, "stalled")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, summary.Done)
	assert.Equal(t, 1, summary.Pending)
}

func TestWaitCorrelation_CancelledCountsAsDone(t *testing.T) {
	m, _ := newTestManager(t, NewRegistry())

	id, err := m.Enqueue(context.Background(), "echo", nil, WithCorrelationID("c"))
	require.NoError(t, err)

	done := make(chan Summary, 1)
	go func() {
		s, _ := m.WaitCorrelation(context.Background(), "c")
		done <- s
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.waiters["c"]) == 1
	}, time.Second, time.Millisecond)

	ok, err := m.Cancel(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case s := <-done:
		assert.True(t, s.Done)
		assert.Equal(t, 1, s.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("WaitCorrelation did not return after the last task was cancelled")
	}
}
