package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/domain"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	UpdateOrderState(ctx context.Context, orderID string, status domain.OrderStatus, entry domain.WebhookLogEntry) error
}

// HoldFinalizer is the slice of the reservation service the state
// machine needs to finalize or release hold sets.
type HoldFinalizer interface {
	HoldSet(ctx context.Context, holdSetID string) (domain.HoldSet, error)
	Consume(ctx context.Context, holdSetID, orderID string) error
	Release(ctx context.Context, holdSetID string) error
}

// StatusPublisher emits an order-status message after a transition has
// committed. Implementations must tolerate best-effort delivery.
type StatusPublisher interface {
	PublishOrderStatus(ctx context.Context, order domain.Order, eventType string) error
}

// OrderService is the only writer of order status. Other components
// request transitions by event; none write status fields directly.
type OrderService struct {
	repo      OrderRepository
	holds     HoldFinalizer
	publisher StatusPublisher
	clock     clock.Clock
	log       logrus.FieldLogger
}

type OrderServiceOption func(*OrderService)

// WithStatusPublisher wires the outbound order-status publisher.
func WithStatusPublisher(p StatusPublisher) OrderServiceOption {
	return func(s *OrderService) {
		s.publisher = p
	}
}

func NewOrderService(repo OrderRepository, holds HoldFinalizer, clk clock.Clock, log logrus.FieldLogger, opts ...OrderServiceOption) *OrderService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	svc := &OrderService{
		repo:  repo,
		holds: holds,
		clock: clk,
		log:   log,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateOrderInput struct {
	HoldSetID       string
	BuyerName       string
	BuyerEmail      string
	TotalPriceCents int64
}

// Create records a pending order against an active hold set. The holds
// stay temporary until payment.completed consumes them.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if in.HoldSetID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	if in.BuyerEmail == "" {
		return domain.Order{}, &domain.MissingFieldError{Field: "buyer_email"}
	}
	if in.TotalPriceCents < 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	set, err := s.holds.HoldSet(ctx, in.HoldSetID)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now()
	quantity := 0
	for _, h := range set.Holds {
		if h.Consumed() {
			return domain.Order{}, domain.ErrHoldConsumed
		}
		if !h.ExpiresAt.After(now) {
			return domain.Order{}, domain.ErrHoldExpired
		}
		quantity += h.Quantity
	}

	order := domain.Order{
		ID:              uuid.NewString(),
		HoldSetID:       in.HoldSetID,
		BuyerName:       in.BuyerName,
		BuyerEmail:      in.BuyerEmail,
		Quantity:        quantity,
		TotalPriceCents: in.TotalPriceCents,
		Status:          domain.OrderPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Get returns an order including its audit trail.
func (s *OrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	return s.repo.GetOrder(ctx, orderID)
}

type ApplyEventInput struct {
	OrderID   string
	EventType string
	Source    string
	TicketID  string
	Reason    string
}

type ApplyEventResult struct {
	Order   domain.Order
	Applied bool
	Note    string
}

// transition returns the next status for an event type, or false when
// the event has no effect from the current status (stale or unknown).
func transition(current domain.OrderStatus, eventType string) (domain.OrderStatus, bool) {
	switch eventType {
	case domain.EventPaymentCompleted:
		if current == domain.OrderPending {
			return domain.OrderPaid, true
		}
	case domain.EventPaymentFailed:
		if current == domain.OrderPending {
			return domain.OrderPaymentFailed, true
		}
	case domain.EventTicketDelivered:
		if current == domain.OrderPaid {
			return domain.OrderDelivered, true
		}
	case domain.EventTicketDeliveryFailed:
		if current == domain.OrderPaid {
			return domain.OrderDeliveryFailed, true
		}
	}
	return current, false
}

// ApplyEvent advances the order state machine by one verified webhook
// event. Transitions are monotonic: a stale event appends a no-op audit
// entry and changes nothing. Every call appends exactly one
// webhook_logs entry.
func (s *OrderService) ApplyEvent(ctx context.Context, in ApplyEventInput) (ApplyEventResult, error) {
	if in.OrderID == "" {
		return ApplyEventResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result ApplyEventResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, in.OrderID)
		if err != nil {
			return err
		}

		next, ok := transition(order.Status, in.EventType)
		entry := domain.WebhookLogEntry{
			At:        now,
			Source:    in.Source,
			EventType: in.EventType,
			Details:   in.Reason,
		}

		if !ok {
			entry.Outcome = domain.LogOutcomeNoop
			if entry.Details == "" {
				entry.Details = "no effect from status " + string(order.Status)
			}
			if err := s.repo.UpdateOrderState(txCtx, order.ID, order.Status, entry); err != nil {
				return err
			}
			result = ApplyEventResult{Order: order, Applied: false, Note: "no-op: " + entry.Details}
			return nil
		}

		note := "order " + string(next)
		switch next {
		case domain.OrderPaid:
			err := s.holds.Consume(txCtx, order.HoldSetID, order.ID)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrHoldExpired):
				// Payment settled after the hold lapsed. The inventory
				// is gone; surface it, never drop it.
				next = domain.OrderPaymentFailed
				note = "payment completed but hold expired before settlement; inventory released"
				entry.Details = note
				if relErr := s.holds.Release(txCtx, order.HoldSetID); relErr != nil {
					s.log.WithError(relErr).WithField("hold_set_id", order.HoldSetID).
						Warn("release of expired hold set failed")
				}
			default:
				return err
			}
		case domain.OrderPaymentFailed:
			if err := s.holds.Release(txCtx, order.HoldSetID); err != nil {
				return err
			}
		}

		entry.Outcome = domain.LogOutcomeApplied
		if err := s.repo.UpdateOrderState(txCtx, order.ID, next, entry); err != nil {
			return err
		}

		order.Status = next
		order.LastWebhookStatus = in.EventType
		order.LastWebhookAt = &now
		order.WebhookLogs = append(order.WebhookLogs, entry)
		result = ApplyEventResult{Order: order, Applied: true, Note: note}
		return nil
	})
	if err != nil {
		return ApplyEventResult{}, err
	}

	if result.Applied {
		s.publishStatus(ctx, result.Order, in.EventType)
	}
	return result, nil
}

// Cancel moves any non-terminal order to cancelled and releases its
// unconsumed holds. Admin path; idempotent on already-cancelled orders.
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var (
		out     domain.Order
		changed bool
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderCancelled {
			out = order
			return nil
		}
		if order.Status.Terminal() {
			return domain.ErrOrderNotCancelable
		}

		if err := s.holds.Release(txCtx, order.HoldSetID); err != nil {
			return err
		}

		entry := domain.WebhookLogEntry{
			At:        now,
			Source:    "admin",
			EventType: "order.cancelled",
			Outcome:   domain.LogOutcomeApplied,
			Details:   reason,
		}
		if err := s.repo.UpdateOrderState(txCtx, order.ID, domain.OrderCancelled, entry); err != nil {
			return err
		}
		order.Status = domain.OrderCancelled
		order.WebhookLogs = append(order.WebhookLogs, entry)
		out = order
		changed = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		s.publishStatus(ctx, out, "order.cancelled")
	}
	return out, nil
}

// publishStatus runs after the per-order lock is released; delivery is
// best-effort and never fails the transition.
func (s *OrderService) publishStatus(ctx context.Context, order domain.Order, eventType string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderStatus(ctx, order, eventType); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Warn("order status publish failed")
	}
}
