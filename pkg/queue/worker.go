package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker runs a pool of independent polling loops against one shared
// storage. Each loop claims a message, hands it to the dispatcher, awaits a
// bounded-time result and applies the lifecycle transition. Loops never talk
// to each other; the storage's atomic claim is the only coordination.
type Worker struct {
	repo       WorkerRepository
	registry   *Registry
	dispatcher *Dispatcher

	workers         int
	pollInterval    time.Duration
	dispatchTimeout time.Duration
	reclaimInterval time.Duration
	reclaimAge      time.Duration
	logger          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker pool pulling from repo and dispatching to the
// listeners registered in registry
func NewWorker(repo WorkerRepository, registry *Registry, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrStorageNil
	}
	if registry == nil {
		return nil, ErrNoListeners
	}

	options := &workerOptions{
		workers:         1,
		pollInterval:    100 * time.Millisecond,
		dispatchTimeout: 30 * time.Second,
		reclaimAge:      5 * time.Minute,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	dispatcher, err := NewDispatcher(registry,
		WithExecutors(options.workers),
		WithDispatcherLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	return &Worker{
		repo:            repo,
		registry:        registry,
		dispatcher:      dispatcher,
		workers:         options.workers,
		pollInterval:    options.pollInterval,
		dispatchTimeout: options.dispatchTimeout,
		reclaimInterval: options.reclaimInterval,
		reclaimAge:      options.reclaimAge,
		logger:          options.logger,
	}, nil
}

// Start spins up the configured number of worker loops in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("worker already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := w.dispatcher.Start(runCtx); err != nil {
		cancel()
		return err
	}
	w.cancel = cancel

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(runCtx, i)
	}

	if w.reclaimInterval > 0 {
		w.wg.Add(1)
		go w.reclaimLoop(runCtx)
	}

	w.logger.Info("queue worker started",
		slog.Int("workers", w.workers),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("dispatch_timeout", w.dispatchTimeout))

	return nil
}

// Stop terminates all worker loops. In-flight claimed messages are dropped
// and remain processing; enable the reclaim sweep to recover them on the
// next run.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("worker not started")
	}

	cancel()
	w.wg.Wait()
	w.dispatcher.Stop()

	w.logger.Info("queue worker stopped")
	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// loop is a single worker's claim/dispatch/finalize cycle
func (w *Worker) loop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	for {
		msg, err := w.repo.ClaimNext(ctx)
		switch {
		case err == nil:
			w.process(ctx, msg, workerNum)
			// Claim again immediately; the poll delay only applies to an
			// empty queue.
			continue
		case errors.Is(err, ErrNoMessageToClaim):
		case ctx.Err() != nil:
			return
		default:
			w.logger.Error("failed to claim message",
				slog.Int("worker", workerNum),
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// process dispatches one claimed message and applies the resulting
// lifecycle transition
func (w *Worker) process(ctx context.Context, msg *Message, workerNum int) {
	start := time.Now()

	err := w.dispatcher.Send(ctx, msg, w.dispatchTimeout)
	if ctx.Err() != nil {
		// Shutdown mid-flight: the message stays processing, no cleanup.
		return
	}

	if err != nil {
		w.logger.Error("message execution failed",
			slog.Int("worker", workerNum),
			slog.String("message_id", msg.ID.String()),
			slog.String("queue", msg.Queue),
			slog.Int("retry_count", msg.RetryCount),
			slog.Int("max_retries", msg.MaxRetries),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))

		if ferr := w.repo.MarkFailed(ctx, msg.ID); ferr != nil {
			w.logger.Error("failed to mark message failed",
				slog.String("message_id", msg.ID.String()),
				slog.String("error", ferr.Error()))
		}
		// Recurrence is never evaluated on the failure path.
		return
	}

	if cerr := w.repo.MarkComplete(ctx, msg.ID); cerr != nil {
		w.logger.Error("failed to mark message completed",
			slog.String("message_id", msg.ID.String()),
			slog.String("error", cerr.Error()))
		return
	}

	w.logger.Info("message completed",
		slog.Int("worker", workerNum),
		slog.String("message_id", msg.ID.String()),
		slog.String("queue", msg.Queue),
		slog.Duration("duration", time.Since(start)))

	w.evaluateRecurrence(ctx, msg)
}

// evaluateRecurrence issues at most one reschedule for a completed message
func (w *Worker) evaluateRecurrence(ctx context.Context, msg *Message) {
	decision, recurs, err := NextRun(msg, time.Now())
	if err != nil {
		// Bad recurrence configuration must not take the loop down, but it
		// is surfaced rather than swallowed; the message keeps its state.
		w.logger.Error("recurrence evaluation failed",
			slog.String("message_id", msg.ID.String()),
			slog.String("queue", msg.Queue),
			slog.String("error", err.Error()))
		return
	}
	if !recurs {
		return
	}

	if err := w.repo.Reschedule(ctx, msg.ID, decision.NextRun, decision.CountRespawn); err != nil {
		w.logger.Error("failed to reschedule message",
			slog.String("message_id", msg.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.logger.Debug("message rescheduled",
		slog.String("message_id", msg.ID.String()),
		slog.String("queue", msg.Queue),
		slog.Time("next_run", decision.NextRun),
		slog.Bool("respawn", decision.CountRespawn))
}

// reclaimLoop periodically returns stale processing messages to pending
func (w *Worker) reclaimLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.reclaimAge)
			n, err := w.repo.ReclaimStale(ctx, cutoff)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Error("failed to reclaim stale messages",
						slog.String("error", err.Error()))
				}
				continue
			}
			if n > 0 {
				w.logger.Warn("reclaimed stale processing messages",
					slog.Int64("count", n),
					slog.Time("cutoff", cutoff))
			}
		}
	}
}
