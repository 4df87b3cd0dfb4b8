// Package queue provides a durable, single-node task queue: producers
// enqueue named messages with a payload, optional delay, retry policy,
// fixed-interval respawn, or cron schedule; a pool of workers claims,
// executes, and reports outcomes, with automatic rescheduling on failure or
// recurrence.
//
// The package is organised around five components:
//
//   - Enqueuer: creates pending messages (the producer API)
//   - Registry: maps queue names to listeners and fans payloads out
//   - Dispatcher: correlation-id request/response link between a worker
//     and the execution context running listeners
//   - Worker: the polling claim/dispatch/finalize loops
//   - Storage: the persistence contract; backends live in their own
//     packages (sqlitestore, pgstore, redisstore) plus the in-memory
//     implementation here
//
// Components interact only through the small repository interfaces, so any
// storage engine that can serialize the claim's select-then-update can back
// the queue. The claim is the sole concurrency mechanism: it guarantees at
// most one worker holds any given message, which makes delivery at-least-once
// but never concurrent-duplicate.
//
// # Message lifecycle
//
// pending → processing → completed | failed, with two revival paths: the
// retry policy returns a failed execution to pending while retries remain,
// and the recurrence engine reschedules interval and cron messages after
// each successful run.
//
// # Usage
//
//	store := queue.NewMemoryStorage()
//	registry := queue.NewRegistry()
//	registry.AddListener("emails", func(ctx context.Context, payload json.RawMessage) error {
//	    // ... deliver the email
//	    return nil
//	})
//
//	enq, _ := queue.NewEnqueuer(store)
//	id, _ := enq.Enqueue(ctx, emailPayload{To: "a@b.c"},
//	    queue.WithQueue("emails"),
//	    queue.WithMaxRetries(3),
//	)
//	_ = id
//
//	w, _ := queue.NewWorker(store, registry, queue.WithWorkers(4))
//	_ = w.Start(ctx)
//	defer w.Stop()
//
// # Error handling
//
// Package-level sentinel errors (ErrNoMessageToClaim, ErrDispatchTimeout,
// ErrInvalidCronPattern, ...) signal contract violations and are checked
// with errors.Is. Storage I/O failures are surfaced to the caller of the
// failing operation; listener failures route through the retry policy.
package queue
