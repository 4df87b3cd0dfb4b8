package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for message creation
type EnqueuerRepository interface {
	CreateMessage(ctx context.Context, msg *Message) error
}

// WorkerRepository defines the interface for worker lifecycle operations
type WorkerRepository interface {
	// ClaimNext atomically selects the oldest-by-StartAt pending message
	// whose StartAt has passed, flips it to processing, and returns it.
	// The select-then-update must be a single serialized unit so that at
	// most one caller ever holds a given message. Returns
	// ErrNoMessageToClaim when nothing is eligible.
	ClaimNext(ctx context.Context) (*Message, error)

	// MarkComplete sets the message to completed. Calling it again for an
	// already completed message is a no-op, not an error.
	MarkComplete(ctx context.Context, id uuid.UUID) error

	// MarkFailed applies the retry policy: while RetryCount < MaxRetries the
	// message returns to pending with RetryCount incremented and StartAt
	// untouched; otherwise it becomes terminally failed.
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// Reschedule revives a message to pending with StartAt = nextRun.
	// countRespawn additionally increments RespawnCount in the same write.
	// Used only by the recurrence path, never by ordinary retry.
	Reschedule(ctx context.Context, id uuid.UUID, nextRun time.Time, countRespawn bool) error

	// ReclaimStale returns processing messages untouched since cutoff back
	// to pending and reports how many were reclaimed.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Storage combines all repository interfaces with read-side helpers.
// Every backend (memory, sqlite, postgres, redis) implements it.
type Storage interface {
	EnqueuerRepository
	WorkerRepository

	// GetByID returns a copy of the message or ErrMessageNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)

	// Stats reports how many messages are in each lifecycle state
	Stats(ctx context.Context) (map[Status]int, error)
}
