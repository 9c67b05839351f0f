package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")

	assert.Equal(t, "provider unavailable", New(KindProvider, "provider unavailable").Error())
	assert.Equal(t, "connection reset", Wrap(KindNetwork, cause).Error())
	assert.Equal(t, "fetch: connection reset", Wrap(KindNetwork, cause, WithMessage("fetch")).Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(KindNetwork, nil))

	cause := errors.New("connection reset")
	err := Wrap(KindNetwork, cause,
		WithContext(map[string]any{"host": "api.example.com"}),
		WithContext(map[string]any{"attempt": 2}),
		WithHint("retry later"),
	)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindNetwork, err.Kind)
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.Equal(t, "retry later", err.RecoveryHint)
	assert.Equal(t, map[string]any{"host": "api.example.com", "attempt": 2}, err.Context)
	assert.False(t, err.Timestamp.IsZero())
}

func TestNewUsesKindDefaults(t *testing.T) {
	for _, k := range Kinds() {
		err := New(k, "x")
		assert.Equal(t, k.DefaultSeverity(), err.Severity, string(k))
		assert.Equal(t, k.DefaultHint(), err.RecoveryHint, string(k))
	}
	assert.Equal(t, SeverityMedium, Kind("custom").DefaultSeverity())
}

func TestRecord(t *testing.T) {
	err := New(KindQueueProcessing, "no handler for render",
		WithContext(map[string]any{"task_type": "render"}))

	rec := err.Record()
	assert.Equal(t, KindQueueProcessing, rec.Kind)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.Equal(t, "no handler for render", rec.Message)
	assert.Equal(t, err.RecoveryHint, rec.RecoveryHint)
	assert.Equal(t, err.Timestamp, rec.Timestamp)

	rec.Context["task_type"] = "changed"
	assert.Equal(t, "render", err.Context["task_type"], "record context is a copy")
}

func TestAs(t *testing.T) {
	assert.Nil(t, As(nil))

	classified := New(KindRateLimit, "slow down")
	assert.Same(t, classified, As(classified))

	plain := errors.New("boom")
	fe := As(plain)
	require.NotNil(t, fe)
	assert.Equal(t, KindUnknown, fe.Kind)
	assert.ErrorIs(t, fe, plain)
}
