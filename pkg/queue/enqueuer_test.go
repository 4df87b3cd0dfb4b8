package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

// Mock repository for enqueuer tests
type mockEnqueuerRepo struct {
	createFunc func(ctx context.Context, msg *queue.Message) error
	messages   []*queue.Message
}

func (m *mockEnqueuerRepo) CreateMessage(ctx context.Context, msg *queue.Message) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, msg)
	}
	m.messages = append(m.messages, msg)
	return nil
}

type enqueueTestPayload struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

// Type that cannot be marshaled to JSON
type unmarshalablePayload struct {
	Ch chan int
}

func TestEnqueuer_NewEnqueuer(t *testing.T) {
	t.Parallel()

	t.Run("successful creation", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)
		require.NotNil(t, enqueuer)
	})

	t.Run("nil repository error", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrStorageNil)
		assert.Nil(t, enqueuer)
	})
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("successful enqueue with defaults", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		payload := enqueueTestPayload{Message: "test", Value: 42}
		id, err := enqueuer.Enqueue(context.Background(), payload)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		require.Len(t, repo.messages, 1)
		msg := repo.messages[0]
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, queue.DefaultQueueName, msg.Queue)
		assert.Equal(t, queue.StatusPending, msg.Status)
		assert.NotEmpty(t, msg.Payload)
		assert.Equal(t, 0, msg.RetryCount)
		assert.Equal(t, 0, msg.MaxRetries)
		assert.Equal(t, 0, msg.RespawnCount)
		assert.Equal(t, queue.UnboundedRespawns, msg.MaxRespawns)
		assert.Nil(t, msg.Interval)
		assert.Empty(t, msg.CronPattern)
		assert.False(t, msg.StartAt.After(time.Now()))
		assert.False(t, msg.CreatedAt.IsZero())
	})

	t.Run("enqueue with custom options", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		startAt := time.Now().Add(time.Hour)
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "custom"},
			queue.WithQueue("emails"),
			queue.WithMaxRetries(5),
			queue.WithStartAt(startAt),
		)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		msg := repo.messages[0]
		assert.Equal(t, "emails", msg.Queue)
		assert.Equal(t, 5, msg.MaxRetries)
		assert.True(t, msg.StartAt.Equal(startAt))
	})

	t.Run("enqueue with delay", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		before := time.Now()
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "delayed"},
			queue.WithDelay(30*time.Second),
		)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		msg := repo.messages[0]
		assert.True(t, msg.StartAt.After(before.Add(29*time.Second)))
		assert.True(t, msg.StartAt.Before(before.Add(31*time.Second)))
	})

	t.Run("startAt overrides delay", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		startAt := time.Now().Add(2 * time.Hour)
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "scheduled"},
			queue.WithDelay(30*time.Second),
			queue.WithStartAt(startAt),
		)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		assert.True(t, repo.messages[0].StartAt.Equal(startAt))
	})

	t.Run("interval message", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "recurring"},
			queue.WithInterval(time.Minute),
			queue.WithMaxRespawns(3),
		)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		msg := repo.messages[0]
		require.NotNil(t, msg.Interval)
		assert.Equal(t, time.Minute, *msg.Interval)
		assert.Equal(t, 3, msg.MaxRespawns)
		assert.True(t, msg.IsInterval())
	})

	t.Run("cron message", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "nightly"},
			queue.WithCron("0 3 * * *"),
		)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		assert.Equal(t, "0 3 * * *", repo.messages[0].CronPattern)
		assert.True(t, repo.messages[0].IsCron())
	})

	t.Run("nil payload error", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		id, err := enqueuer.Enqueue(context.Background(), nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)
		assert.Equal(t, uuid.Nil, id)
		assert.Empty(t, repo.messages)
	})

	t.Run("negative max retries error", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{},
			queue.WithMaxRetries(-1),
		)
		assert.ErrorIs(t, err, queue.ErrInvalidMaxRetries)
		assert.Empty(t, repo.messages)
	})

	t.Run("non-positive interval error", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{},
			queue.WithInterval(0),
		)
		assert.ErrorIs(t, err, queue.ErrInvalidInterval)
		assert.Empty(t, repo.messages)
	})

	t.Run("malformed cron pattern error", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{},
			queue.WithCron("not a cron"),
		)
		assert.ErrorIs(t, err, queue.ErrInvalidCronPattern)
		assert.Empty(t, repo.messages)
	})

	t.Run("marshal payload error", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), unmarshalablePayload{Ch: make(chan int)})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal payload")
		assert.Empty(t, repo.messages)
	})

	t.Run("repository error", func(t *testing.T) {
		t.Parallel()

		repoErr := errors.New("database connection lost")
		repo := &mockEnqueuerRepo{
			createFunc: func(ctx context.Context, msg *queue.Message) error {
				return repoErr
			},
		}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "fail"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create message")
		assert.Contains(t, err.Error(), "database connection lost")
	})
}

func TestEnqueuer_DefaultQueue(t *testing.T) {
	t.Parallel()

	t.Run("uses configured default queue", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo, queue.WithDefaultQueue("billing"))
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "test"})
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		assert.Equal(t, "billing", repo.messages[0].Queue)
	})

	t.Run("per-message queue overrides default", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo, queue.WithDefaultQueue("billing"))
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "test"},
			queue.WithQueue("reports"),
		)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)
		assert.Equal(t, "reports", repo.messages[0].Queue)
	})
}

func TestEnqueuer_PayloadMarshaling(t *testing.T) {
	t.Parallel()

	t.Run("preserves payload data", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		payload := enqueueTestPayload{
			Message: "test message with special chars: üëç",
			Value:   -12345,
		}
		_, err = enqueuer.Enqueue(context.Background(), payload)
		require.NoError(t, err)

		require.Len(t, repo.messages, 1)

		var decoded enqueueTestPayload
		err = json.Unmarshal(repo.messages[0].Payload, &decoded)
		require.NoError(t, err)
		assert.Equal(t, payload.Message, decoded.Message)
		assert.Equal(t, payload.Value, decoded.Value)
	})
}
