package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Wire message kinds exchanged between a worker and its execution context
const (
	messageTypeProcess       = "process"
	messageTypeProcessResult = "processResult"
)

// processRequest asks the execution context to run all listeners for a queue
type processRequest struct {
	Type      string          `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	MessageID uuid.UUID       `json:"messageId"`
}

// processResult reports the outcome of a processRequest, matched back to the
// waiting worker by message id
type processResult struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"messageId"`
	Error     string    `json:"error,omitempty"`
}

// Dispatcher is the request/response link between workers and the execution
// context running queue listeners. Requests carry the message id as a
// correlation id; results are matched back to the outstanding waiter, and
// results without a waiter (late replies after a timeout) are dropped.
type Dispatcher struct {
	registry *Registry
	requests chan processRequest
	results  chan processResult

	mu      sync.Mutex
	waiters map[uuid.UUID]chan processResult

	executors int
	logger    *slog.Logger

	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher backed by the given listener registry
func NewDispatcher(registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := &dispatcherOptions{
		executors: 1,
		buffer:    16,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Dispatcher{
		registry:  registry,
		requests:  make(chan processRequest, options.buffer),
		results:   make(chan processResult, options.buffer),
		waiters:   make(map[uuid.UUID]chan processResult),
		executors: options.executors,
		logger:    options.logger,
	}, nil
}

// Start launches the executor and result-matching goroutines
func (d *Dispatcher) Start(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.cancel != nil {
		return fmt.Errorf("dispatcher already started")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.executors; i++ {
		d.wg.Add(1)
		go d.executeLoop(d.ctx)
	}

	d.wg.Add(1)
	go d.matchLoop(d.ctx)

	return nil
}

// Stop terminates the dispatcher goroutines. Outstanding waiters observe the
// shutdown through their send context.
func (d *Dispatcher) Stop() {
	d.runMu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
}

// Send dispatches the message payload and blocks until a matching result
// arrives, the timeout elapses, or ctx is cancelled. The waiter is registered
// before the request is queued and always retired on exit, so no matcher
// entry leaks. A timeout is reported as ErrDispatchTimeout and the eventual
// late result, if any, is discarded.
func (d *Dispatcher) Send(ctx context.Context, msg *Message, timeout time.Duration) error {
	d.runMu.Lock()
	running := d.cancel != nil
	runCtx := d.ctx
	d.runMu.Unlock()

	if !running {
		return ErrDispatcherClosed
	}

	ch := make(chan processResult, 1)
	d.mu.Lock()
	d.waiters[msg.ID] = ch
	d.mu.Unlock()

	req := processRequest{
		Type:      messageTypeProcess,
		Queue:     msg.Queue,
		Payload:   msg.Payload,
		MessageID: msg.ID,
	}

	select {
	case d.requests <- req:
	case <-ctx.Done():
		d.retireWaiter(msg.ID)
		return ctx.Err()
	case <-runCtx.Done():
		d.retireWaiter(msg.ID)
		return ErrDispatcherClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Error != "" {
			return errors.New(res.Error)
		}
		return nil
	case <-timer.C:
		d.retireWaiter(msg.ID)
		return ErrDispatchTimeout
	case <-ctx.Done():
		d.retireWaiter(msg.ID)
		return ctx.Err()
	case <-runCtx.Done():
		d.retireWaiter(msg.ID)
		return ErrDispatcherClosed
	}
}

func (d *Dispatcher) retireWaiter(id uuid.UUID) {
	d.mu.Lock()
	delete(d.waiters, id)
	d.mu.Unlock()
}

// executeLoop consumes process requests and runs the registered listeners
func (d *Dispatcher) executeLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			res := processResult{
				Type:      messageTypeProcessResult,
				MessageID: req.MessageID,
			}
			if err := d.registry.Dispatch(ctx, req.Queue, req.Payload); err != nil {
				res.Error = err.Error()
			}

			select {
			case d.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// matchLoop routes results back to their waiters by correlation id
func (d *Dispatcher) matchLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-d.results:
			d.mu.Lock()
			ch, ok := d.waiters[res.MessageID]
			if ok {
				delete(d.waiters, res.MessageID)
			}
			d.mu.Unlock()

			if !ok {
				// Late reply after a timeout, or a duplicate. Dropping it
				// keeps stale results from reaching the wrong waiter.
				d.logger.Debug("dropping unmatched dispatch result",
					slog.String("message_id", res.MessageID.String()))
				continue
			}

			ch <- res
		}
	}
}
