package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage for testing and local development.
// All mutating operations serialize on one mutex, which trivially gives the
// claim its required atomicity.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]*Message

	// Status index keeps claim scans away from terminal messages
	byStatus map[Status][]uuid.UUID
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[uuid.UUID]*Message),
		byStatus: make(map[Status][]uuid.UUID),
	}
}

// CreateMessage implements EnqueuerRepository
func (ms *MemoryStorage) CreateMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Clone to prevent external modifications
	clone := *msg
	ms.messages[msg.ID] = &clone
	ms.byStatus[msg.Status] = append(ms.byStatus[msg.Status], msg.ID)

	return nil
}

// ClaimNext implements WorkerRepository. The whole select-then-update runs
// under the write lock, so concurrent claimants serialize and at most one of
// them receives any given message.
func (ms *MemoryStorage) ClaimNext(ctx context.Context) (*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var oldest *Message

	for _, id := range ms.byStatus[StatusPending] {
		msg := ms.messages[id]
		if msg.StartAt.After(now) {
			continue
		}
		if oldest == nil ||
			msg.StartAt.Before(oldest.StartAt) ||
			(msg.StartAt.Equal(oldest.StartAt) && msg.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = msg
		}
	}

	if oldest == nil {
		return nil, ErrNoMessageToClaim
	}

	oldest.Status = StatusProcessing
	oldest.UpdatedAt = now
	ms.moveStatusIndex(oldest.ID, StatusPending, StatusProcessing)

	clone := *oldest
	return &clone, nil
}

// MarkComplete implements WorkerRepository. A second call for an already
// completed message is a no-op.
func (ms *MemoryStorage) MarkComplete(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[id]
	if !exists {
		return ErrMessageNotFound
	}

	if msg.Status == StatusCompleted {
		return nil
	}
	if msg.Status != StatusProcessing {
		return ErrMessageNotProcessing
	}

	msg.Status = StatusCompleted
	msg.UpdatedAt = time.Now()
	ms.moveStatusIndex(id, StatusProcessing, StatusCompleted)

	return nil
}

// MarkFailed implements WorkerRepository. Retries do not back off: the
// message becomes immediately re-eligible with its StartAt untouched.
func (ms *MemoryStorage) MarkFailed(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[id]
	if !exists {
		return ErrMessageNotFound
	}
	if msg.Status != StatusProcessing {
		return ErrMessageNotProcessing
	}

	msg.UpdatedAt = time.Now()

	if msg.RetryCount < msg.MaxRetries {
		msg.RetryCount++
		msg.Status = StatusPending
		ms.moveStatusIndex(id, StatusProcessing, StatusPending)
	} else {
		msg.Status = StatusFailed
		ms.moveStatusIndex(id, StatusProcessing, StatusFailed)
	}

	return nil
}

// Reschedule implements WorkerRepository
func (ms *MemoryStorage) Reschedule(ctx context.Context, id uuid.UUID, nextRun time.Time, countRespawn bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[id]
	if !exists {
		return ErrMessageNotFound
	}

	prev := msg.Status
	msg.Status = StatusPending
	msg.StartAt = nextRun
	msg.UpdatedAt = time.Now()
	if countRespawn {
		msg.RespawnCount++
	}
	ms.moveStatusIndex(id, prev, StatusPending)

	return nil
}

// ReclaimStale implements WorkerRepository
func (ms *MemoryStorage) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var reclaimed int64
	for _, id := range slices.Clone(ms.byStatus[StatusProcessing]) {
		msg := ms.messages[id]
		if msg.UpdatedAt.Before(cutoff) {
			msg.Status = StatusPending
			msg.UpdatedAt = time.Now()
			ms.moveStatusIndex(id, StatusProcessing, StatusPending)
			reclaimed++
		}
	}

	return reclaimed, nil
}

// GetByID implements Storage
func (ms *MemoryStorage) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists {
		return nil, ErrMessageNotFound
	}

	clone := *msg
	return &clone, nil
}

// Stats implements Storage
func (ms *MemoryStorage) Stats(ctx context.Context) (map[Status]int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stats := make(map[Status]int, len(ms.byStatus))
	for status, ids := range ms.byStatus {
		if len(ids) > 0 {
			stats[status] = len(ids)
		}
	}
	return stats, nil
}

func (ms *MemoryStorage) moveStatusIndex(id uuid.UUID, from, to Status) {
	ms.byStatus[from] = slices.DeleteFunc(ms.byStatus[from], func(existing uuid.UUID) bool {
		return existing == id
	})
	ms.byStatus[to] = append(ms.byStatus[to], id)
}
