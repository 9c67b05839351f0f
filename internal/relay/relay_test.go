package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages [][]byte
	topics   []string
	err      error
	stopped  bool
}

func (p *fakeProducer) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, body)
	return nil
}

func (p *fakeProducer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func (p *fakeProducer) envelopes(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, 0, len(p.messages))
	for _, m := range p.messages {
		var env map[string]any
		require.NoError(t, json.Unmarshal(m, &env))
		out = append(out, env)
	}
	return out
}

func emit(t *testing.T, bus *events.Bus, p events.Payload) {
	t.Helper()
	_, err := events.Emit(context.Background(), bus, "test", p)
	require.NoError(t, err)
}

func TestRelayForwardsSelectedTypes(t *testing.T) {
	bus := events.NewBus(logger.Discard())
	bus.Start()
	defer bus.Stop()

	prod := &fakeProducer{}
	r := New(prod, "docsmith.events", []string{events.TypeTaskCompleted}, 8, logger.Discard())
	r.Start(bus)

	emit(t, bus, events.TaskQueued{TaskID: "t1", Type: "echo"})
	emit(t, bus, events.TaskCompleted{TaskID: "t1"})

	require.Eventually(t, func() bool { return prod.count() == 1 }, time.Second, 5*time.Millisecond)
	r.Stop()

	envs := prod.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, events.TypeTaskCompleted, envs[0]["type"])
	assert.Equal(t, EnvelopeVersion, envs[0]["version"])
	assert.Equal(t, "test", envs[0]["source"])
	assert.NotEmpty(t, envs[0]["id"])
	assert.NotEmpty(t, envs[0]["at"])
	assert.Equal(t, "t1", envs[0]["payload"].(map[string]any)["task_id"])
	assert.Equal(t, []string{"docsmith.events"}, prod.topics)
	assert.True(t, prod.stopped)
}

func TestRelayForwardsAllTypesByDefault(t *testing.T) {
	bus := events.NewBus(logger.Discard())
	bus.Start()
	defer bus.Stop()

	prod := &fakeProducer{}
	r := New(prod, "all", nil, 0, logger.Discard())
	r.Start(bus)

	emit(t, bus, events.TaskQueued{TaskID: "a", Type: "echo"})
	emit(t, bus, events.TaskCancelled{TaskID: "a"})

	require.Eventually(t, func() bool { return prod.count() == 2 }, time.Second, 5*time.Millisecond)
	r.Stop()
}

func TestRelayPublishFailureIsCounted(t *testing.T) {
	bus := events.NewBus(logger.Discard())
	bus.Start()
	defer bus.Stop()

	before := testutil.ToFloat64(metrics.RelayForwardedTotal.WithLabelValues("failed"))

	prod := &fakeProducer{err: errors.New("nsqd unreachable")}
	r := New(prod, "t", nil, 4, logger.Discard())
	r.Start(bus)

	emit(t, bus, events.TaskCancelled{TaskID: "x"})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RelayForwardedTotal.WithLabelValues("failed")) == before+1
	}, time.Second, 5*time.Millisecond)
	r.Stop()
}

func TestRelayDropsWhenBufferFull(t *testing.T) {
	before := testutil.ToFloat64(metrics.RelayForwardedTotal.WithLabelValues("dropped"))

	// Not started, so nothing drains the buffer.
	r := New(&fakeProducer{}, "t", nil, 1, logger.Discard())
	ev, err := events.NewEvent("test", events.TaskCancelled{TaskID: "x"})
	require.NoError(t, err)
	require.NoError(t, r.HandleEvent(context.Background(), ev))
	require.NoError(t, r.HandleEvent(context.Background(), ev))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RelayForwardedTotal.WithLabelValues("dropped")))
}

func TestRelayStopIsIdempotent(t *testing.T) {
	prod := &fakeProducer{}
	r := New(prod, "t", nil, 1, logger.Discard())
	r.Stop()
	r.Stop()
	assert.True(t, prod.stopped)
}
