package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Listener handles payloads dispatched to a queue
type Listener func(ctx context.Context, payload json.RawMessage) error

// ListenerID identifies a registration for later removal. Function values
// are not comparable in Go, so deregistration works by token instead of by
// handler identity.
type ListenerID uint64

// Registry maps queue names to registered listeners and fans dispatched
// payloads out to them. It is an explicit object owned by the caller rather
// than package-level state, so multiple engine instances stay isolated.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]map[ListenerID]Listener
	nextID    ListenerID
}

// NewRegistry creates an empty listener registry
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string]map[ListenerID]Listener),
	}
}

// AddListener registers a listener for the queue. Multiple listeners per
// queue are permitted; every dispatched payload reaches all of them.
func (r *Registry) AddListener(queue string, fn Listener) ListenerID {
	if fn == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	if r.listeners[queue] == nil {
		r.listeners[queue] = make(map[ListenerID]Listener)
	}
	r.listeners[queue][id] = fn

	return id
}

// RemoveListener deregisters a listener by its registration token
func (r *Registry) RemoveListener(queue string, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.listeners[queue]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(r.listeners, queue)
		}
	}
}

// ListenerCount returns how many listeners are registered for the queue
func (r *Registry) ListenerCount(queue string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[queue])
}

// Dispatch invokes every listener registered for the queue with the payload.
// All listeners run regardless of individual failures; any listener error
// (or panic) marks the whole dispatch as failed, with errors joined. A queue
// with no listeners dispatches successfully as a no-op.
func (r *Registry) Dispatch(ctx context.Context, queue string, payload json.RawMessage) error {
	r.mu.RLock()
	fns := make([]Listener, 0, len(r.listeners[queue]))
	for _, fn := range r.listeners[queue] {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := invokeListener(ctx, fn, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func invokeListener(ctx context.Context, fn Listener, payload json.RawMessage) (retErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			retErr = fmt.Errorf("panic in listener: %v", rec)
		}
	}()
	return fn(ctx, payload)
}
