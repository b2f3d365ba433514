package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTaskType is returned when a type tag has no registered handler.
var ErrUnknownTaskType = errors.New("unknown task type")

// Registry maps the closed set of task type tags to handler instances.
// Registration happens during startup wiring; lookups are concurrent-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a type tag. Registering the same tag twice
// is a wiring bug and panics.
func (r *Registry) Register(taskType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[taskType]; exists {
		panic(fmt.Sprintf("task type %q registered twice", taskType))
	}
	r.handlers[taskType] = handler
}

// Resolve returns the handler bound to the type tag.
func (r *Registry) Resolve(taskType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return handler, nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
