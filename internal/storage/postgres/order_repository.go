package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/ticketing/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const orderColumns = `
id, hold_set_id, buyer_name, buyer_email, quantity, total_price_cents, status,
COALESCE(last_webhook_status, ''), last_webhook_at, webhook_logs, created_at, updated_at`

func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.scanOrder(r.queryRow(ctx, query, orderID))
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.queryRow(ctx, query, orderID))
}

func (r *OrderRepository) scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o       domain.Order
		status  string
		rawLogs []byte
	)
	err := row.Scan(&o.ID, &o.HoldSetID, &o.BuyerName, &o.BuyerEmail, &o.Quantity,
		&o.TotalPriceCents, &status, &o.LastWebhookStatus, &o.LastWebhookAt,
		&rawLogs, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	if len(rawLogs) > 0 {
		if err := json.Unmarshal(rawLogs, &o.WebhookLogs); err != nil {
			return domain.Order{}, fmt.Errorf("decode webhook logs: %w", err)
		}
	}
	return o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, hold_set_id, buyer_name, buyer_email, quantity, total_price_cents, status, webhook_logs, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, $8, $9)`

	_, err := r.exec(ctx, stmt,
		order.ID,
		order.HoldSetID,
		order.BuyerName,
		order.BuyerEmail,
		order.Quantity,
		order.TotalPriceCents,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// UpdateOrderState is the single write path for order status. The
// audit entry is appended to the jsonb array; existing entries are
// never rewritten.
func (r *OrderRepository) UpdateOrderState(ctx context.Context, orderID string, status domain.OrderStatus, entry domain.WebhookLogEntry) error {
	rawEntry, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode webhook log entry: %w", err)
	}

	const stmt = `
UPDATE orders
SET status = $2,
    last_webhook_status = $3,
    last_webhook_at = $4,
    webhook_logs = webhook_logs || $5::jsonb,
    updated_at = $4
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, orderID, status, entry.EventType, entry.At, rawEntry)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
