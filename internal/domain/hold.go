package domain

import "time"

// Hold is a time-boxed claim on a quantity of a ticket item. A row
// exists only while the claim matters: active holds have no order,
// consumed holds are linked to the order that finalized them, and
// expired unconsumed holds are deleted by the sweeper.
type Hold struct {
	ID           string
	HoldSetID    string
	TicketItemID string
	RequesterID  string
	Quantity     int
	// RequestToken makes retries of the create path idempotent; it is
	// unique per ticket item.
	RequestToken string
	// OrderID is empty until the hold is consumed.
	OrderID   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active reports whether the hold still claims inventory at now.
func (h Hold) Active(now time.Time) bool {
	return h.OrderID == "" && h.ExpiresAt.After(now)
}

// Consumed reports whether the hold became a permanent allocation.
func (h Hold) Consumed() bool {
	return h.OrderID != ""
}

// HoldSet groups the holds created by one multi-item reservation call.
type HoldSet struct {
	ID          string
	RequesterID string
	ExpiresAt   time.Time
	Holds       []Hold
}
