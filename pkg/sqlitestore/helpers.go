package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tluyben/queue-sqlite/pkg/queue"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds. Stored times are
// always UTC, so the TEXT column sorts and compares lexicographically in
// chronological order, which the claim's start_at <= now scan relies on.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(timeFormat, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableIntervalMs(interval *time.Duration) any {
	if interval == nil {
		return nil
	}
	return interval.Milliseconds()
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*queue.Message, error) {
	var (
		idStr       string
		queueName   string
		payload     sql.NullString
		statusStr   string
		startAtRaw  string
		retryCount  int
		maxRetries  int
		intervalMs  sql.NullInt64
		respawns    int
		maxRespawns int
		cronPattern sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&idStr,
		&queueName,
		&payload,
		&statusStr,
		&startAtRaw,
		&retryCount,
		&maxRetries,
		&intervalMs,
		&respawns,
		&maxRespawns,
		&cronPattern,
		&createdRaw,
		&updatedRaw,
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
		RetryCount:   retryCount,
		MaxRetries:   maxRetries,
		RespawnCount: respawns,
		MaxRespawns:  maxRespawns,
		CronPattern:  cronPattern.String,
	}
	if payload.Valid {
		msg.Payload = json.RawMessage(payload.String)
	}
	if intervalMs.Valid {
		interval := time.Duration(intervalMs.Int64) * time.Millisecond
		msg.Interval = &interval
	}

	if startAt, err := parseTime(startAtRaw); err == nil {
		msg.StartAt = startAt
	}
	if created, err := parseTime(createdRaw); err == nil {
		msg.CreatedAt = created
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		msg.UpdatedAt = updated
	}

	return msg, nil
}
