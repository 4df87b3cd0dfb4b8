package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the queue name used when no queue is specified
const DefaultQueueName = "default"

// UnboundedRespawns disables the respawn cap for interval messages
const UnboundedRespawns = -1

// Status represents the lifecycle state of a message
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid checks if the status is one of the known lifecycle states
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Message represents a unit of work in the queue.
//
// A message is created pending, claimed into processing by exactly one
// worker, and finishes completed or failed. Interval and cron messages are
// revived to pending with a new StartAt after each successful run.
type Message struct {
	ID           uuid.UUID       `json:"id"`
	Queue        string          `json:"queue"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       Status          `json:"status"`
	StartAt      time.Time       `json:"start_at"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	Interval     *time.Duration  `json:"interval,omitempty"`
	RespawnCount int             `json:"respawn_count"`
	MaxRespawns  int             `json:"max_respawns"`
	CronPattern  string          `json:"cron_pattern,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsInterval reports whether the message recurs on a fixed interval
func (m *Message) IsInterval() bool {
	return m.Interval != nil
}

// IsCron reports whether the message recurs on a cron schedule
func (m *Message) IsCron() bool {
	return m.CronPattern != ""
}

// Eligible reports whether the message may be claimed at the given instant
func (m *Message) Eligible(now time.Time) bool {
	return m.Status == StatusPending && !m.StartAt.After(now)
}
