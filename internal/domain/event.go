package domain

import "time"

// Event represents a ticketed event the catalog sells items for.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
}
