package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

// Store is a durable queue storage backed by PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on top of an established connection pool. Run the
// embedded migrations (see Migrations) before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const messageColumns = "id, queue, payload, status, start_at, retry_count, max_retries, interval_ms, respawn_count, max_respawns, cron_pattern, created_at, updated_at"

// CreateMessage implements queue.EnqueuerRepository
func (s *Store) CreateMessage(ctx context.Context, msg *queue.Message) error {
	if msg == nil {
		return queue.ErrPayloadNil
	}

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO queue_messages (`+messageColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		msg.ID.String(),
		msg.Queue,
		nullablePayload(msg.Payload),
		string(msg.Status),
		msg.StartAt.UTC(),
		msg.RetryCount,
		msg.MaxRetries,
		nullableIntervalMs(msg.Interval),
		msg.RespawnCount,
		msg.MaxRespawns,
		nullableString(msg.CronPattern),
		msg.CreatedAt.UTC(),
		msg.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ClaimNext implements queue.WorkerRepository. FOR UPDATE SKIP LOCKED lets
// concurrent claimants pass over a row already being claimed instead of
// blocking on it, so exactly one caller wins each message and the rest move
// on.
func (s *Store) ClaimNext(ctx context.Context) (*queue.Message, error) {
	row := s.pool.QueryRow(
		ctx,
		`UPDATE queue_messages SET status = $1, updated_at = now()
         WHERE id = (
             SELECT id FROM queue_messages
             WHERE status = $2 AND start_at <= now()
             ORDER BY start_at, created_at
             LIMIT 1
             FOR UPDATE SKIP LOCKED
         )
         RETURNING `+messageColumns,
		string(queue.StatusProcessing),
		string(queue.StatusPending),
	)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNoMessageToClaim
		}
		return nil, fmt.Errorf("claim next message: %w", err)
	}
	return msg, nil
}

// MarkComplete implements queue.WorkerRepository; completing an already
// completed message is a no-op
func (s *Store) MarkComplete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(
		ctx,
		`UPDATE queue_messages SET status = $1, updated_at = now()
         WHERE id = $2 AND status IN ($1, $3)`,
		string(queue.StatusCompleted),
		id.String(),
		string(queue.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("mark message completed: %w", err)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), id)
}

// MarkFailed implements queue.WorkerRepository with the retry decision in a
// single CASE update
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(
		ctx,
		`UPDATE queue_messages SET
             status = CASE WHEN retry_count < max_retries THEN $1 ELSE $2 END,
             retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
             updated_at = now()
         WHERE id = $3 AND status = $4`,
		string(queue.StatusPending),
		string(queue.StatusFailed),
		id.String(),
		string(queue.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), id)
}

// Reschedule implements queue.WorkerRepository
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, nextRun time.Time, countRespawn bool) error {
	bump := 0
	if countRespawn {
		bump = 1
	}

	tag, err := s.pool.Exec(
		ctx,
		`UPDATE queue_messages
         SET status = $1, start_at = $2, respawn_count = respawn_count + $3, updated_at = now()
         WHERE id = $4`,
		string(queue.StatusPending),
		nextRun.UTC(),
		bump,
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("reschedule message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}

// ReclaimStale implements queue.WorkerRepository
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(
		ctx,
		`UPDATE queue_messages SET status = $1, updated_at = now()
         WHERE status = $2 AND updated_at < $3`,
		string(queue.StatusPending),
		string(queue.StatusProcessing),
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID implements queue.Storage
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*queue.Message, error) {
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+messageColumns+` FROM queue_messages WHERE id = $1`,
		id.String(),
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message by id: %w", err)
	}
	return msg, nil
}

// Stats implements queue.Storage
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(1) FROM queue_messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats[queue.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}
	return stats, nil
}

func (s *Store) checkTransition(ctx context.Context, affected int64, id uuid.UUID) error {
	if affected > 0 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return queue.ErrMessageNotProcessing
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullablePayload(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	return []byte(payload)
}

func nullableIntervalMs(interval *time.Duration) any {
	if interval == nil {
		return nil
	}
	return interval.Milliseconds()
}

func scanMessage(row pgx.Row) (*queue.Message, error) {
	var (
		idStr       string
		queueName   string
		payload     []byte
		statusStr   string
		startAt     time.Time
		retryCount  int
		maxRetries  int
		intervalMs  *int64
		respawns    int
		maxRespawns int
		cronPattern *string
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := row.Scan(
		&idStr,
		&queueName,
		&payload,
		&statusStr,
		&startAt,
		&retryCount,
		&maxRetries,
		&intervalMs,
		&respawns,
		&maxRespawns,
		&cronPattern,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}

	msg := &queue.Message{
		ID:           id,
		Queue:        queueName,
		Status:       queue.Status(statusStr),
		StartAt:      startAt,
		RetryCount:   retryCount,
		MaxRetries:   maxRetries,
		RespawnCount: respawns,
		MaxRespawns:  maxRespawns,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	if len(payload) > 0 {
		msg.Payload = json.RawMessage(payload)
	}
	if intervalMs != nil {
		interval := time.Duration(*intervalMs) * time.Millisecond
		msg.Interval = &interval
	}
	if cronPattern != nil {
		msg.CronPattern = *cronPattern
	}

	return msg, nil
}
