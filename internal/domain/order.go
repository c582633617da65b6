package domain

import "time"

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderPaid           OrderStatus = "paid"
	OrderPaymentFailed  OrderStatus = "payment_failed"
	OrderDelivered      OrderStatus = "delivered"
	OrderDeliveryFailed OrderStatus = "delivery_failed"
	OrderCancelled      OrderStatus = "cancelled"
)

// Terminal reports whether no further transition (including admin
// cancellation) may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// WebhookLogEntry is one append-only audit record on an order. Entries
// are written for applied transitions and for stale no-ops alike.
type WebhookLogEntry struct {
	At        time.Time `json:"at"`
	Source    string    `json:"source"`
	EventType string    `json:"event_type"`
	Outcome   string    `json:"outcome"`
	Details   string    `json:"details,omitempty"`
}

const (
	LogOutcomeApplied = "applied"
	LogOutcomeNoop    = "noop"
)

// Order is the buyer-facing transaction record. Status is mutated
// exclusively by the order state machine; rows are never deleted.
type Order struct {
	ID              string
	HoldSetID       string
	BuyerName       string
	BuyerEmail      string
	Quantity        int
	TotalPriceCents int64
	Status          OrderStatus

	LastWebhookStatus string
	LastWebhookAt     *time.Time
	WebhookLogs       []WebhookLogEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}
