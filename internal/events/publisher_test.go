package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stagepass/ticketing/internal/domain"
)

func TestNewOrderStatusEvent(t *testing.T) {
	t.Parallel()

	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:         "order-1",
		HoldSetID:  "set-1",
		Status:     domain.OrderPaid,
		BuyerEmail: "buyer@example.com",
		UpdatedAt:  updated,
	}

	ev := newOrderStatusEvent(order, domain.EventPaymentCompleted)

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "order-1", ev.OrderID)
	assert.Equal(t, "set-1", ev.HoldSetID)
	assert.Equal(t, string(domain.OrderPaid), ev.Status)
	assert.Equal(t, domain.EventPaymentCompleted, ev.Trigger)
	assert.Equal(t, "buyer@example.com", ev.BuyerEmail)
	assert.Equal(t, updated, ev.OccurredAt)

	// Every event carries a distinct ID.
	other := newOrderStatusEvent(order, domain.EventPaymentCompleted)
	assert.NotEqual(t, ev.EventID, other.EventID)
}

func TestNewOrderStatusEventDefaultsOccurredAt(t *testing.T) {
	t.Parallel()

	ev := newOrderStatusEvent(domain.Order{ID: "order-1"}, domain.EventPaymentFailed)
	assert.False(t, ev.OccurredAt.IsZero())
}
