// Package events publishes order lifecycle messages for downstream
// fulfillment and notification consumers. Publishing happens after a
// state transition has committed and its lock is released; delivery is
// external action, not part of the transition.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stagepass/ticketing/internal/domain"
)

const OrderStatusQueue = "order.status"

const publishTimeout = 3 * time.Second

// OrderStatusEvent is the message emitted for every applied order
// transition.
type OrderStatusEvent struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	HoldSetID  string    `json:"hold_set_id"`
	Status     string    `json:"status"`
	Trigger    string    `json:"trigger"`
	BuyerEmail string    `json:"buyer_email"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare the queue so publish never fails on missing infra.
	if _, err := ch.QueueDeclare(OrderStatusQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", OrderStatusQueue, err)
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderStatus(ctx context.Context, order domain.Order, trigger string) error {
	body, err := json.Marshal(newOrderStatusEvent(order, trigger))
	if err != nil {
		return fmt.Errorf("marshal order status event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",               // default exchange
		OrderStatusQueue, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func newOrderStatusEvent(order domain.Order, trigger string) OrderStatusEvent {
	occurred := order.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return OrderStatusEvent{
		EventID:    uuid.NewString(),
		OrderID:    order.ID,
		HoldSetID:  order.HoldSetID,
		Status:     string(order.Status),
		Trigger:    trigger,
		BuyerEmail: order.BuyerEmail,
		OccurredAt: occurred,
	}
}
