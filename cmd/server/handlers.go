package main

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/task"
)

// Built-in task types. Real documentation work is registered by embedding
// applications; these let an operator exercise the queue end to end.
const (
	TaskTypeEcho  = "echo"
	TaskTypeSleep = "sleep"
)

const maxSleep = time.Minute

func registerHandlers(reg *task.Registry) error {
	if err := reg.Register(TaskTypeEcho, task.HandlerFunc(echo)); err != nil {
		return err
	}
	return reg.Register(TaskTypeSleep, task.HandlerFunc(sleep))
}

func echo(_ context.Context, payload map[string]any) (map[string]any, error) {
	return payload, nil
}

// sleep waits payload["duration_ms"] milliseconds, honouring cancellation.
func sleep(ctx context.Context, payload map[string]any) (map[string]any, error) {
	var ms float64
	switch v := payload["duration_ms"].(type) {
	case float64:
		ms = v
	case int:
		ms = float64(v)
	case nil:
	default:
		return nil, fault.New(fault.KindRejected, fmt.Sprintf("duration_ms must be a number, got %T", v))
	}
	d := time.Duration(ms) * time.Millisecond
	if d < 0 || d > maxSleep {
		return nil, fault.New(fault.KindRejected, fmt.Sprintf("duration_ms out of range: %v", ms))
	}

	start := time.Now()
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"slept_ms": time.Since(start).Milliseconds()}, nil
}
