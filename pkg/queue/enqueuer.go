package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Enqueuer handles message creation for producers
type Enqueuer struct {
	repo         EnqueuerRepository
	defaultQueue string
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrStorageNil
	}

	options := &enqueuerOptions{
		defaultQueue: DefaultQueueName,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:         repo,
		defaultQueue: options.defaultQueue,
	}, nil
}

// Enqueue adds a new message to the queue and returns its id.
//
// The message is created pending with RetryCount and RespawnCount zero.
// Validation failures (empty queue name, nil or unserializable payload,
// negative retry limit, non-positive interval, malformed cron pattern) are
// reported synchronously; only storage I/O errors occur afterwards.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		maxRetries:  0,
		maxRespawns: UnboundedRespawns,
	}

	for _, opt := range opts {
		opt(options)
	}

	if err := validateEnqueueOptions(options); err != nil {
		return uuid.Nil, err
	}

	msg, err := buildMessage(payload, options)
	if err != nil {
		return uuid.Nil, err
	}

	if err := e.repo.CreateMessage(ctx, msg); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create message in queue %q: %w", msg.Queue, err)
	}

	return msg.ID, nil
}

func validateEnqueueOptions(options *enqueueOptions) error {
	if options.queue == "" {
		return ErrQueueNameEmpty
	}
	if options.maxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if options.interval != nil && *options.interval <= 0 {
		return ErrInvalidInterval
	}
	if options.maxRespawns < UnboundedRespawns {
		return ErrInvalidMaxRespawns
	}
	if options.cronPattern != "" {
		if _, err := cron.ParseStandard(options.cronPattern); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidCronPattern, options.cronPattern, err)
		}
	}
	return nil
}

// buildMessage constructs a Message from payload and options
func buildMessage(payload any, options *enqueueOptions) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	now := time.Now()

	startAt := now
	if options.startAt != nil {
		startAt = *options.startAt
	} else if options.delay > 0 {
		startAt = startAt.Add(options.delay)
	}

	return &Message{
		ID:           uuid.New(),
		Queue:        options.queue,
		Payload:      payloadBytes,
		Status:       StatusPending,
		StartAt:      startAt,
		RetryCount:   0,
		MaxRetries:   options.maxRetries,
		Interval:     options.interval,
		RespawnCount: 0,
		MaxRespawns:  options.maxRespawns,
		CronPattern:  options.cronPattern,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
