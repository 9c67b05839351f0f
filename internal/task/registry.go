package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Handler executes the work of one task type. The returned map becomes the
// task result. Handlers should honour ctx; one that does not is abandoned
// when the task timeout elapses.
type Handler interface {
	Handle(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return f(ctx, payload)
}

// UnknownTypeError is returned by Registry.Get for an unregistered type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no handler registered for task type %q", e.Type)
}

// Registry maps task types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to taskType, replacing any previous handler.
func (r *Registry) Register(taskType string, h Handler) error {
	if taskType == "" {
		return errors.New("task type cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for task type %q cannot be nil", taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
	return nil
}

// Get returns the handler for taskType or an *UnknownTypeError.
func (r *Registry) Get(taskType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	if !ok {
		return nil, &UnknownTypeError{Type: taskType}
	}
	return h, nil
}

// Types lists registered task types in lexical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
