package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

func startedDispatcher(t *testing.T, registry *queue.Registry, opts ...queue.DispatcherOption) *queue.Dispatcher {
	t.Helper()

	d, err := queue.NewDispatcher(registry, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcher_New(t *testing.T) {
	t.Parallel()

	t.Run("nil registry error", func(t *testing.T) {
		t.Parallel()

		d, err := queue.NewDispatcher(nil)
		assert.ErrorIs(t, err, queue.ErrRegistryNil)
		assert.Nil(t, d)
	})

	t.Run("send before start is rejected", func(t *testing.T) {
		t.Parallel()

		d, err := queue.NewDispatcher(queue.NewRegistry())
		require.NoError(t, err)

		msg := newTestMessage(time.Now())
		err = d.Send(context.Background(), msg, time.Second)
		assert.ErrorIs(t, err, queue.ErrDispatcherClosed)
	})
}

func TestDispatcher_Send(t *testing.T) {
	t.Parallel()

	t.Run("result is matched back to the sender", func(t *testing.T) {
		t.Parallel()

		registry := queue.NewRegistry()
		var received json.RawMessage
		registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
			received = p
			return nil
		})

		d := startedDispatcher(t, registry)

		msg := newTestMessage(time.Now())
		err := d.Send(context.Background(), msg, time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, string(msg.Payload), string(received))
	})

	t.Run("listener error is reported to the sender", func(t *testing.T) {
		t.Parallel()

		registry := queue.NewRegistry()
		registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
			return errors.New("smtp unreachable")
		})

		d := startedDispatcher(t, registry)

		err := d.Send(context.Background(), newTestMessage(time.Now()), time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp unreachable")
	})

	t.Run("slow listener triggers ErrDispatchTimeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		registry := queue.NewRegistry()
		registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
			<-release
			return nil
		})

		d := startedDispatcher(t, registry)
		t.Cleanup(func() { close(release) })

		err := d.Send(context.Background(), newTestMessage(time.Now()), 50*time.Millisecond)
		assert.ErrorIs(t, err, queue.ErrDispatchTimeout)
	})

	t.Run("late reply after a timeout does not reach a later sender", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		var calls atomic.Int64
		registry := queue.NewRegistry()
		registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
			if calls.Add(1) == 1 {
				<-release
			}
			return nil
		})

		d := startedDispatcher(t, registry, queue.WithExecutors(2))

		slow := newTestMessage(time.Now())
		err := d.Send(context.Background(), slow, 50*time.Millisecond)
		require.ErrorIs(t, err, queue.ErrDispatchTimeout)

		// Release the stuck listener; its late result must be dropped, not
		// delivered to the next send.
		close(release)

		fast := newTestMessage(time.Now())
		err = d.Send(context.Background(), fast, time.Second)
		assert.NoError(t, err)
	})

	t.Run("cancelled context unblocks the sender", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		registry := queue.NewRegistry()
		registry.AddListener(queue.DefaultQueueName, func(ctx context.Context, p json.RawMessage) error {
			<-release
			return nil
		})

		d := startedDispatcher(t, registry)
		t.Cleanup(func() { close(release) })

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		err := d.Send(ctx, newTestMessage(time.Now()), time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no listeners completes successfully", func(t *testing.T) {
		t.Parallel()

		d := startedDispatcher(t, queue.NewRegistry())
		err := d.Send(context.Background(), newTestMessage(time.Now()), time.Second)
		assert.NoError(t, err)
	})
}

func TestDispatcher_Stop(t *testing.T) {
	t.Parallel()

	registry := queue.NewRegistry()
	d, err := queue.NewDispatcher(registry)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	d.Stop()

	err = d.Send(context.Background(), newTestMessage(time.Now()), time.Second)
	assert.ErrorIs(t, err, queue.ErrDispatcherClosed)

	// Stopping twice is safe.
	d.Stop()
}
