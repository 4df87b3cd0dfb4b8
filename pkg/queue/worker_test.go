package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

// waitFor polls until the condition holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startWorker(t *testing.T, storage queue.Storage, registry *queue.Registry, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()

	base := []queue.WorkerOption{queue.WithPollInterval(10 * time.Millisecond)}
	w, err := queue.NewWorker(storage, registry, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWorker_New(t *testing.T) {
	t.Parallel()

	t.Run("nil storage error", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(nil, queue.NewRegistry())
		assert.ErrorIs(t, err, queue.ErrStorageNil)
		assert.Nil(t, w)
	})

	t.Run("nil registry error", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(queue.NewMemoryStorage(), nil)
		assert.ErrorIs(t, err, queue.ErrNoListeners)
		assert.Nil(t, w)
	})
}

func TestWorker_ProcessesMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	type payload struct {
		Order string `json:"order"`
	}

	received := make(chan json.RawMessage, 1)
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		received <- p
		return nil
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	id, err := enqueuer.Enqueue(ctx, payload{Order: "A-100"})
	require.NoError(t, err)

	startWorker(t, storage, registry)

	select {
	case raw := <-received:
		var got payload
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "A-100", got.Order)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never received the payload")
	}

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		msg, err := storage.GetByID(ctx, id)
		return err == nil && msg.Status == queue.StatusCompleted
	}), "message never completed")
}

func TestWorker_AllListenersReceive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	var first, second atomic.Int64
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		first.Add(1)
		return nil
	})
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		second.Add(1)
		return nil
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	id, err := enqueuer.Enqueue(ctx, map[string]string{"k": "v"})
	require.NoError(t, err)

	startWorker(t, storage, registry)

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		msg, err := storage.GetByID(ctx, id)
		return err == nil && msg.Status == queue.StatusCompleted
	}))

	assert.Equal(t, int64(1), first.Load())
	assert.Equal(t, int64(1), second.Load())
}

func TestWorker_RetriesThenFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	var invocations atomic.Int64
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		invocations.Add(1)
		return errors.New("always fails")
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	id, err := enqueuer.Enqueue(ctx, map[string]string{"k": "v"}, queue.WithMaxRetries(2))
	require.NoError(t, err)

	startWorker(t, storage, registry)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		msg, err := storage.GetByID(ctx, id)
		return err == nil && msg.Status == queue.StatusFailed
	}), "message never reached failed")

	// Give a settled queue a moment to prove no extra attempts happen.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(3), invocations.Load())

	msg, err := storage.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, msg.RetryCount)
}

func TestWorker_ZeroRetriesFailsImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	var invocations atomic.Int64
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		invocations.Add(1)
		return errors.New("nope")
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	id, err := enqueuer.Enqueue(ctx, map[string]string{"k": "v"})
	require.NoError(t, err)

	startWorker(t, storage, registry)

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		msg, err := storage.GetByID(ctx, id)
		return err == nil && msg.Status == queue.StatusFailed
	}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), invocations.Load())
}

func TestWorker_IntervalRespawnCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	var executions atomic.Int64
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		executions.Add(1)
		return nil
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	id, err := enqueuer.Enqueue(ctx, map[string]string{"k": "v"},
		queue.WithInterval(20*time.Millisecond),
		queue.WithMaxRespawns(2),
	)
	require.NoError(t, err)

	startWorker(t, storage, registry)

	// Initial run plus two respawns.
	require.True(t, waitFor(t, 3*time.Second, func() bool {
		return executions.Load() == 3
	}), "expected exactly 3 executions, got %d", executions.Load())

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		msg, err := storage.GetByID(ctx, id)
		return err == nil && msg.Status == queue.StatusCompleted && msg.RespawnCount == 2
	}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(3), executions.Load())
}

func TestWorker_FutureMessageNotClaimedEarly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	ran := make(chan time.Time, 1)
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		ran <- time.Now()
		return nil
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	startAt := time.Now().Add(200 * time.Millisecond)
	_, err = enqueuer.Enqueue(ctx, map[string]string{"k": "v"}, queue.WithStartAt(startAt))
	require.NoError(t, err)

	startWorker(t, storage, registry)

	select {
	case executedAt := <-ran:
		assert.False(t, executedAt.Before(startAt), "message executed before its start time")
	case <-time.After(2 * time.Second):
		t.Fatal("message never executed")
	}
}

func TestWorker_DispatchTimeoutFailsMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	release := make(chan struct{})
	var invocations atomic.Int64
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		invocations.Add(1)
		<-release
		return nil
	})
	t.Cleanup(func() { close(release) })

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	id, err := enqueuer.Enqueue(ctx, map[string]string{"k": "v"})
	require.NoError(t, err)

	startWorker(t, storage, registry, queue.WithDispatchTimeout(50*time.Millisecond))

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		msg, err := storage.GetByID(ctx, id)
		return err == nil && msg.Status == queue.StatusFailed
	}), "timed-out message never failed")

	assert.Equal(t, int64(1), invocations.Load())
}

func TestWorker_MultipleWorkersNoDoubleExecution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	var (
		executions atomic.Int64
		perMessage [16]atomic.Int64
	)
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		var body struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(p, &body); err != nil {
			return err
		}
		perMessage[body.N].Add(1)
		executions.Add(1)
		return nil
	})

	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(perMessage))
	for i := range perMessage {
		id, err := enqueuer.Enqueue(ctx, map[string]int{"n": i})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	startWorker(t, storage, registry, queue.WithWorkers(4))

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		return executions.Load() == int64(len(perMessage))
	}))

	for _, id := range ids {
		msg, err := storage.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, msg.Status)
	}
	for i := range perMessage {
		assert.Equal(t, int64(1), perMessage[i].Load(), "message %d executed more than once", i)
	}
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	w, err := queue.NewWorker(storage, registry, queue.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "double start must be rejected")

	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop(), "double stop must be rejected")

	// Restart after a clean stop works.
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
}

func TestWorker_ReclaimStaleSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := queue.NewMemoryStorage()
	registry := queue.NewRegistry()

	var executions atomic.Int64
	registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
		executions.Add(1)
		return nil
	})

	// Simulate a message orphaned in processing by a crashed worker.
	msg := newTestMessage(time.Now().Add(-time.Minute))
	require.NoError(t, storage.CreateMessage(ctx, msg))
	claimed, err := storage.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, msg.ID, claimed.ID)

	startWorker(t, storage, registry,
		queue.WithReclaimInterval(20*time.Millisecond),
		queue.WithReclaimAge(time.Nanosecond),
	)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		got, err := storage.GetByID(ctx, msg.ID)
		return err == nil && got.Status == queue.StatusCompleted
	}), "orphaned message was never reclaimed and completed")

	assert.Equal(t, int64(1), executions.Load())
}
