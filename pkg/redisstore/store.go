package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

// Store is a queue storage backed by Redis.
//
// Layout: each message lives as a JSON blob under <prefix>:msg:<id>; the
// pending set is a ZSET scored by StartAt (unix ms) and the processing set a
// ZSET scored by claim time. The claim moves an id between the two sets in a
// Lua script, which Redis executes atomically, so at most one caller wins a
// message. A claimed message is owned by its single claimant, which is what
// makes the plain read-modify-write transitions after the claim safe.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a Store on top of an established Redis client
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "queue"
	}
	return &Store{client: client, prefix: prefix}
}

// claimScript pops the oldest due pending id and parks it in the processing
// set in one atomic step
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
    return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id
`)

func (s *Store) msgKey(id uuid.UUID) string {
	return s.prefix + ":msg:" + id.String()
}

func (s *Store) pendingKey() string {
	return s.prefix + ":pending"
}

func (s *Store) processingKey() string {
	return s.prefix + ":processing"
}

// CreateMessage implements queue.EnqueuerRepository
func (s *Store) CreateMessage(ctx context.Context, msg *queue.Message) error {
	if msg == nil {
		return queue.ErrPayloadNil
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.msgKey(msg.ID), raw, 0)
	pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
		Score:  float64(msg.StartAt.UnixMilli()),
		Member: msg.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// ClaimNext implements queue.WorkerRepository
func (s *Store) ClaimNext(ctx context.Context) (*queue.Message, error) {
	now := time.Now()

	res, err := claimScript.Run(ctx, s.client,
		[]string{s.pendingKey(), s.processingKey()},
		strconv.FormatInt(now.UnixMilli(), 10),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrNoMessageToClaim
		}
		return nil, fmt.Errorf("claim next message: %w", err)
	}

	idStr, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected claim script result %T", res)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse claimed id: %w", err)
	}

	msg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	msg.Status = queue.StatusProcessing
	msg.UpdatedAt = now
	if err := s.save(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkComplete implements queue.WorkerRepository; completing an already
// completed message is a no-op
func (s *Store) MarkComplete(ctx context.Context, id uuid.UUID) error {
	msg, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if msg.Status == queue.StatusCompleted {
		return nil
	}
	if msg.Status != queue.StatusProcessing {
		return queue.ErrMessageNotProcessing
	}

	msg.Status = queue.StatusCompleted
	msg.UpdatedAt = time.Now()

	pipe := s.client.TxPipeline()
	s.saveInPipe(ctx, pipe, msg)
	pipe.ZRem(ctx, s.processingKey(), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete message: %w", err)
	}
	return nil
}

// MarkFailed implements queue.WorkerRepository
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	msg, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if msg.Status != queue.StatusProcessing {
		return queue.ErrMessageNotProcessing
	}

	msg.UpdatedAt = time.Now()

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.processingKey(), id.String())

	if msg.RetryCount < msg.MaxRetries {
		msg.RetryCount++
		msg.Status = queue.StatusPending
		pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
			Score:  float64(msg.StartAt.UnixMilli()),
			Member: id.String(),
		})
	} else {
		msg.Status = queue.StatusFailed
	}
	s.saveInPipe(ctx, pipe, msg)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail message: %w", err)
	}
	return nil
}

// Reschedule implements queue.WorkerRepository
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, nextRun time.Time, countRespawn bool) error {
	msg, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	msg.Status = queue.StatusPending
	msg.StartAt = nextRun
	msg.UpdatedAt = time.Now()
	if countRespawn {
		msg.RespawnCount++
	}

	pipe := s.client.TxPipeline()
	s.saveInPipe(ctx, pipe, msg)
	pipe.ZRem(ctx, s.processingKey(), id.String())
	pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
		Score:  float64(nextRun.UnixMilli()),
		Member: id.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reschedule message: %w", err)
	}
	return nil
}

// ReclaimStale implements queue.WorkerRepository
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan stale processing: %w", err)
	}

	var reclaimed int64
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		msg, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, queue.ErrMessageNotFound) {
				continue
			}
			return reclaimed, err
		}
		// A pending blob under a processing set entry means the claimant
		// died between the claim script and the blob update; move it back
		// too. Completed and failed blobs only need the set entry removed.
		if msg.Status != queue.StatusProcessing && msg.Status != queue.StatusPending {
			s.client.ZRem(ctx, s.processingKey(), idStr)
			continue
		}

		msg.Status = queue.StatusPending
		msg.UpdatedAt = time.Now()

		pipe := s.client.TxPipeline()
		s.saveInPipe(ctx, pipe, msg)
		pipe.ZRem(ctx, s.processingKey(), idStr)
		pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
			Score:  float64(msg.StartAt.UnixMilli()),
			Member: idStr,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, fmt.Errorf("reclaim message %s: %w", idStr, err)
		}
		reclaimed++
	}

	return reclaimed, nil
}

// GetByID implements queue.Storage
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*queue.Message, error) {
	return s.load(ctx, id)
}

// Stats implements queue.Storage. It scans all message blobs; fine for
// operational inspection, not meant for hot paths.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	stats := make(map[queue.Status]int)

	iter := s.client.Scan(ctx, 0, s.prefix+":msg:*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("read message blob: %w", err)
		}
		var msg queue.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		stats[msg.Status]++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return stats, nil
}

func (s *Store) load(ctx context.Context, id uuid.UUID) (*queue.Message, error) {
	raw, err := s.client.Get(ctx, s.msgKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrMessageNotFound
		}
		return nil, fmt.Errorf("read message: %w", err)
	}

	var msg queue.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

func (s *Store) save(ctx context.Context, msg *queue.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.Set(ctx, s.msgKey(msg.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (s *Store) saveInPipe(ctx context.Context, pipe redis.Pipeliner, msg *queue.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		// Message came from json.Unmarshal moments ago; a marshal failure
		// here is unreachable in practice.
		return
	}
	pipe.Set(ctx, s.msgKey(msg.ID), raw, 0)
}
