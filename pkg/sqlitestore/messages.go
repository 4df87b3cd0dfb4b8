package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

const messageColumns = "id, queue, payload, status, start_at, retry_count, max_retries, interval_ms, respawn_count, max_respawns, cron_pattern, created_at, updated_at"

// CreateMessage implements queue.EnqueuerRepository
func (s *Store) CreateMessage(ctx context.Context, msg *queue.Message) error {
	if msg == nil {
		return queue.ErrPayloadNil
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_messages (`+messageColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(),
		msg.Queue,
		nullableString(string(msg.Payload)),
		string(msg.Status),
		formatTime(msg.StartAt),
		msg.RetryCount,
		msg.MaxRetries,
		nullableIntervalMs(msg.Interval),
		msg.RespawnCount,
		msg.MaxRespawns,
		nullableString(msg.CronPattern),
		formatTime(msg.CreatedAt),
		formatTime(msg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ClaimNext implements queue.WorkerRepository. The select-then-update runs
// as one UPDATE statement, which SQLite executes atomically, so concurrent
// claimants serialize on the database and at most one receives any given
// message.
func (s *Store) ClaimNext(ctx context.Context) (*queue.Message, error) {
	now := formatTime(time.Now())

	var (
		msg     *queue.Message
		scanErr error
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE queue_messages SET status = ?, updated_at = ?
             WHERE id = (
                 SELECT id FROM queue_messages
                 WHERE status = ? AND start_at <= ?
                 ORDER BY start_at, created_at LIMIT 1
             )
             RETURNING `+messageColumns,
			string(queue.StatusProcessing),
			now,
			string(queue.StatusPending),
			now,
		)
		msg, scanErr = scanMessage(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrNoMessageToClaim
		}
		return nil, fmt.Errorf("claim next message: %w", err)
	}
	return msg, nil
}

// MarkComplete implements queue.WorkerRepository. Completing an already
// completed message is a no-op.
func (s *Store) MarkComplete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_messages SET status = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		string(queue.StatusCompleted),
		formatTime(time.Now()),
		id.String(),
		string(queue.StatusProcessing),
		string(queue.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("mark message completed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkFailed implements queue.WorkerRepository. The retry decision runs as
// one CASE update so the counter check and the status flip cannot race.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_messages SET
             status = CASE WHEN retry_count < max_retries THEN ? ELSE ? END,
             retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
             updated_at = ?
         WHERE id = ? AND status = ?`,
		string(queue.StatusPending),
		string(queue.StatusFailed),
		formatTime(time.Now()),
		id.String(),
		string(queue.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// Reschedule implements queue.WorkerRepository
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, nextRun time.Time, countRespawn bool) error {
	bump := 0
	if countRespawn {
		bump = 1
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_messages SET status = ?, start_at = ?, respawn_count = respawn_count + ?, updated_at = ?
         WHERE id = ?`,
		string(queue.StatusPending),
		formatTime(nextRun),
		bump,
		formatTime(time.Now()),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("reschedule message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reschedule rows affected: %w", err)
	}
	if affected == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}

// ReclaimStale implements queue.WorkerRepository
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_messages SET status = ?, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		string(queue.StatusPending),
		formatTime(time.Now()),
		string(queue.StatusProcessing),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale messages: %w", err)
	}
	return res.RowsAffected()
}

// GetByID implements queue.Storage
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*queue.Message, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+messageColumns+` FROM queue_messages WHERE id = ?`,
		id.String(),
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message by id: %w", err)
	}
	return msg, nil
}

// Stats implements queue.Storage
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// checkTransition maps a zero-row lifecycle update to the precise contract
// error: unknown id or a message outside processing.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return queue.ErrMessageNotProcessing
}
