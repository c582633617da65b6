package domain

import "time"

type TicketItemStatus string

const (
	TicketItemAvailable TicketItemStatus = "available"
	TicketItemSoldOut   TicketItemStatus = "sold_out"
	TicketItemWithdrawn TicketItemStatus = "withdrawn"
)

// TicketItem is a sellable unit of inventory for one event/tier.
// TotalQuantity is never mutated by the reservation path; holds and
// allocations are tracked separately and subtracted at read time.
type TicketItem struct {
	ID            string
	EventID       string
	Name          string
	TotalQuantity int
	Status        TicketItemStatus
	CreatedAt     time.Time
}

// ItemAvailability is the derived availability view for one item.
type ItemAvailability struct {
	TicketItemID string           `json:"ticket_item_id"`
	Name         string           `json:"name"`
	Total        int              `json:"total"`
	Available    int              `json:"available"`
	Status       TicketItemStatus `json:"status"`
}
