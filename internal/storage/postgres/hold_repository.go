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

// HoldRepository backs the reservation service. The per-item
// serialization point is the FOR UPDATE lock on ticket_items.
type HoldRepository struct {
	pool *pgxpool.Pool
}

func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{pool: pool}
}

func (r *HoldRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *HoldRepository) GetTicketItemForUpdate(ctx context.Context, itemID string) (domain.TicketItem, error) {
	const query = `
SELECT id, event_id, name, total_quantity, status, created_at
FROM ticket_items
WHERE id = $1
FOR UPDATE`

	var item domain.TicketItem
	err := r.queryRow(ctx, query, itemID).
		Scan(&item.ID, &item.EventID, &item.Name, &item.TotalQuantity, &item.Status, &item.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TicketItem{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.TicketItem{}, domain.ErrTicketItemNotFound
		}
		return domain.TicketItem{}, fmt.Errorf("get ticket item: %w", err)
	}
	return item, nil
}

func (r *HoldRepository) FindHoldsByRequestToken(ctx context.Context, token string) ([]domain.Hold, error) {
	const query = `
SELECT id, hold_set_id, ticket_item_id, requester_id, quantity, request_token,
       COALESCE(order_id::text, ''), expires_at, created_at
FROM holds
WHERE request_token = $1
ORDER BY ticket_item_id`

	rows, err := r.query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("find holds by request token: %w", err)
	}
	defer rows.Close()
	return scanHolds(rows)
}

func (r *HoldRepository) SumActiveHolds(ctx context.Context, itemID string, now time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM holds
WHERE ticket_item_id = $1 AND order_id IS NULL AND expires_at > $2`

	var total int
	if err := r.queryRow(ctx, query, itemID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum active holds: %w", err)
	}
	return total, nil
}

func (r *HoldRepository) SumConsumedHolds(ctx context.Context, itemID string) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM holds
WHERE ticket_item_id = $1 AND order_id IS NOT NULL`

	var total int
	if err := r.queryRow(ctx, query, itemID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum consumed holds: %w", err)
	}
	return total, nil
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, hold_set_id, ticket_item_id, requester_id, quantity, request_token, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		hold.ID,
		hold.HoldSetID,
		hold.TicketItemID,
		hold.RequesterID,
		hold.Quantity,
		hold.RequestToken,
		hold.ExpiresAt,
		hold.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (r *HoldRepository) GetHoldsForUpdate(ctx context.Context, holdSetID string) ([]domain.Hold, error) {
	const query = `
SELECT id, hold_set_id, ticket_item_id, requester_id, quantity, request_token,
       COALESCE(order_id::text, ''), expires_at, created_at
FROM holds
WHERE hold_set_id = $1
ORDER BY ticket_item_id
FOR UPDATE`

	rows, err := r.query(ctx, query, holdSetID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("get holds for update: %w", err)
	}
	defer rows.Close()
	return scanHolds(rows)
}

func (r *HoldRepository) GetHoldsBySet(ctx context.Context, holdSetID string) ([]domain.Hold, error) {
	const query = `
SELECT id, hold_set_id, ticket_item_id, requester_id, quantity, request_token,
       COALESCE(order_id::text, ''), expires_at, created_at
FROM holds
WHERE hold_set_id = $1
ORDER BY ticket_item_id`

	rows, err := r.query(ctx, query, holdSetID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("get holds by set: %w", err)
	}
	defer rows.Close()
	return scanHolds(rows)
}

func (r *HoldRepository) LinkHoldsToOrder(ctx context.Context, holdSetID, orderID string) error {
	const stmt = `UPDATE holds SET order_id = $2 WHERE hold_set_id = $1 AND order_id IS NULL`

	tag, err := r.exec(ctx, stmt, holdSetID, orderID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("link holds to order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

func (r *HoldRepository) DeleteUnconsumedHolds(ctx context.Context, holdSetID string) ([]string, error) {
	const stmt = `
DELETE FROM holds h
USING ticket_items t
WHERE h.ticket_item_id = t.id AND h.hold_set_id = $1 AND h.order_id IS NULL
RETURNING t.event_id`

	rows, err := r.query(ctx, stmt, holdSetID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("delete unconsumed holds: %w", err)
	}
	defer rows.Close()
	return scanDistinctIDs(rows)
}

func (r *HoldRepository) DeleteExpiredHolds(ctx context.Context, now time.Time) (int, []string, error) {
	const stmt = `
DELETE FROM holds h
USING ticket_items t
WHERE h.ticket_item_id = t.id AND h.expires_at < $1 AND h.order_id IS NULL
RETURNING t.event_id`

	rows, err := r.query(ctx, stmt, now)
	if err != nil {
		return 0, nil, fmt.Errorf("delete expired holds: %w", err)
	}
	defer rows.Close()

	count := 0
	seen := make(map[string]struct{})
	var eventIDs []string
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return 0, nil, fmt.Errorf("scan swept hold: %w", err)
		}
		count++
		if _, ok := seen[eventID]; !ok {
			seen[eventID] = struct{}{}
			eventIDs = append(eventIDs, eventID)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("sweep expired holds: %w", err)
	}
	return count, eventIDs, nil
}

func (r *HoldRepository) ListTicketItemsByEvent(ctx context.Context, eventID string) ([]domain.TicketItem, error) {
	const query = `
SELECT id, event_id, name, total_quantity, status, created_at
FROM ticket_items
WHERE event_id = $1
ORDER BY name`

	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list ticket items: %w", err)
	}
	defer rows.Close()

	var items []domain.TicketItem
	for rows.Next() {
		var item domain.TicketItem
		if err := rows.Scan(&item.ID, &item.EventID, &item.Name, &item.TotalQuantity, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ticket items: %w", err)
	}
	return items, nil
}

func scanHolds(rows pgx.Rows) ([]domain.Hold, error) {
	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.ID, &h.HoldSetID, &h.TicketItemID, &h.RequesterID, &h.Quantity,
			&h.RequestToken, &h.OrderID, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read holds: %w", err)
	}
	return holds, nil
}

func scanDistinctIDs(rows pgx.Rows) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return ids, nil
}

func (r *HoldRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *HoldRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *HoldRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
