package domain

import (
	"encoding/json"
	"time"
)

// Event types delivered by the payment and fulfillment providers.
const (
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventTicketDelivered      = "ticket.delivered"
	EventTicketDeliveryFailed = "ticket.delivery_failed"
)

type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "success"
	ProcessingError   ProcessingStatus = "error"
)

// WebhookEvent is one received external notification, persisted before
// business-logic dispatch so a crash between persistence and dispatch
// is recoverable by replay.
type WebhookEvent struct {
	ID                string
	Source            string
	EventType         string
	Payload           json.RawMessage
	IdempotencyKey    string
	Verified          bool
	Processed         bool
	ProcessedAt       *time.Time
	ProcessingStatus  ProcessingStatus
	ProcessingDetails string
	CreatedAt         time.Time
}
