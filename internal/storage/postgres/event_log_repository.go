package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/ticketing/internal/domain"
)

// EventLogRepository is the append-only record of accepted webhook
// deliveries. The unique idempotency key is the exactly-once anchor.
type EventLogRepository struct {
	pool *pgxpool.Pool
}

func NewEventLogRepository(pool *pgxpool.Pool) *EventLogRepository {
	return &EventLogRepository{pool: pool}
}

func (r *EventLogRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.WebhookEvent, error) {
	const query = `
SELECT id, source, event_type, payload, idempotency_key, verified, processed,
       processed_at, COALESCE(processing_status, ''), COALESCE(processing_details, ''), created_at
FROM webhook_events
WHERE idempotency_key = $1`

	var (
		ev     domain.WebhookEvent
		status string
	)
	err := r.queryRow(ctx, query, key).Scan(&ev.ID, &ev.Source, &ev.EventType, &ev.Payload,
		&ev.IdempotencyKey, &ev.Verified, &ev.Processed, &ev.ProcessedAt,
		&status, &ev.ProcessingDetails, &ev.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find webhook event: %w", err)
	}
	ev.ProcessingStatus = domain.ProcessingStatus(status)
	return &ev, nil
}

func (r *EventLogRepository) InsertEvent(ctx context.Context, ev domain.WebhookEvent) error {
	const stmt = `
INSERT INTO webhook_events (id, source, event_type, payload, idempotency_key, verified, processed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7)`

	_, err := r.exec(ctx, stmt, ev.ID, ev.Source, ev.EventType, []byte(ev.Payload),
		ev.IdempotencyKey, ev.Verified, ev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

func (r *EventLogRepository) MarkProcessed(ctx context.Context, eventID string, status domain.ProcessingStatus, details string, at time.Time) error {
	const stmt = `
UPDATE webhook_events
SET processed = true, processed_at = $2, processing_status = $3, processing_details = $4
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, eventID, at, status, details)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark webhook event processed: event %s not found", eventID)
	}
	return nil
}

func (r *EventLogRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *EventLogRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
