package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventNameRequired  = errors.New("event name required")
	ErrTicketItemNotFound = errors.New("ticket item not found")
	ErrItemNameRequired   = errors.New("ticket item name required")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrEmptySelection     = errors.New("at least one seat selection is required")
	ErrDuplicateSelection = errors.New("duplicate ticket item in selection")
	ErrRequesterRequired  = errors.New("requester identity required")
	ErrInvalidID          = errors.New("invalid id")

	ErrHoldNotFound = errors.New("hold not found")
	ErrHoldExpired  = errors.New("hold expired")
	ErrHoldConsumed = errors.New("hold already consumed by another order")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotCancelable = errors.New("order is in a terminal state")

	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrEventTypeRequired   = errors.New("event type required")
	ErrHandlerTimeout      = errors.New("webhook handler timed out")
)

// Shortfall describes one ticket item that could not be reserved.
type Shortfall struct {
	TicketItemID string
	Requested    int
	Available    int
}

func (s Shortfall) String() string {
	return fmt.Sprintf("ticket item %s: requested %d, available %d", s.TicketItemID, s.Requested, s.Available)
}

// InsufficientInventoryError aggregates every item that failed in a
// multi-item reservation. No holds remain when it is returned.
type InsufficientInventoryError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientInventoryError) Error() string {
	msgs := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		msgs = append(msgs, s.String())
	}
	return "insufficient inventory: " + strings.Join(msgs, "; ")
}

// MissingFieldError reports a required payload field absent from a
// webhook event.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}
