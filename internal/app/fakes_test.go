package app

import (
	"context"
	"sort"
	"time"

	"github.com/stagepass/ticketing/internal/domain"
)

// fakeReservationRepo is an in-memory ReservationRepository. WithTx
// snapshots the hold slice and restores it on error, mirroring a
// rollback.
type fakeReservationRepo struct {
	items map[string]domain.TicketItem
	holds []domain.Hold
}

func newFakeReservationRepo(items []domain.TicketItem, holds []domain.Hold) *fakeReservationRepo {
	byID := make(map[string]domain.TicketItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return &fakeReservationRepo{items: byID, holds: append([]domain.Hold(nil), holds...)}
}

func (f *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := append([]domain.Hold(nil), f.holds...)
	if err := fn(ctx); err != nil {
		f.holds = snapshot
		return err
	}
	return nil
}

func (f *fakeReservationRepo) GetTicketItemForUpdate(_ context.Context, itemID string) (domain.TicketItem, error) {
	item, ok := f.items[itemID]
	if !ok {
		return domain.TicketItem{}, domain.ErrTicketItemNotFound
	}
	return item, nil
}

func (f *fakeReservationRepo) FindHoldsByRequestToken(_ context.Context, token string) ([]domain.Hold, error) {
	var out []domain.Hold
	for _, h := range f.holds {
		if h.RequestToken == token {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeReservationRepo) SumActiveHolds(_ context.Context, itemID string, now time.Time) (int, error) {
	total := 0
	for _, h := range f.holds {
		if h.TicketItemID == itemID && h.Active(now) {
			total += h.Quantity
		}
	}
	return total, nil
}

func (f *fakeReservationRepo) SumConsumedHolds(_ context.Context, itemID string) (int, error) {
	total := 0
	for _, h := range f.holds {
		if h.TicketItemID == itemID && h.Consumed() {
			total += h.Quantity
		}
	}
	return total, nil
}

func (f *fakeReservationRepo) CreateHold(_ context.Context, hold domain.Hold) error {
	for _, h := range f.holds {
		if h.TicketItemID == hold.TicketItemID && h.RequestToken == hold.RequestToken {
			return domain.ErrIdempotencyConflict
		}
	}
	f.holds = append(f.holds, hold)
	return nil
}

func (f *fakeReservationRepo) GetHoldsForUpdate(ctx context.Context, holdSetID string) ([]domain.Hold, error) {
	return f.GetHoldsBySet(ctx, holdSetID)
}

func (f *fakeReservationRepo) GetHoldsBySet(_ context.Context, holdSetID string) ([]domain.Hold, error) {
	var out []domain.Hold
	for _, h := range f.holds {
		if h.HoldSetID == holdSetID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeReservationRepo) LinkHoldsToOrder(_ context.Context, holdSetID, orderID string) error {
	for i := range f.holds {
		if f.holds[i].HoldSetID == holdSetID && !f.holds[i].Consumed() {
			f.holds[i].OrderID = orderID
		}
	}
	return nil
}

func (f *fakeReservationRepo) DeleteUnconsumedHolds(_ context.Context, holdSetID string) ([]string, error) {
	return f.deleteHolds(func(h domain.Hold) bool {
		return h.HoldSetID == holdSetID && !h.Consumed()
	}), nil
}

func (f *fakeReservationRepo) DeleteExpiredHolds(_ context.Context, now time.Time) (int, []string, error) {
	before := len(f.holds)
	eventIDs := f.deleteHolds(func(h domain.Hold) bool {
		return !h.Consumed() && !h.ExpiresAt.After(now)
	})
	return before - len(f.holds), eventIDs, nil
}

func (f *fakeReservationRepo) deleteHolds(match func(domain.Hold) bool) []string {
	var (
		kept     []domain.Hold
		eventIDs []string
		seen     = make(map[string]struct{})
	)
	for _, h := range f.holds {
		if !match(h) {
			kept = append(kept, h)
			continue
		}
		if item, ok := f.items[h.TicketItemID]; ok {
			if _, dup := seen[item.EventID]; !dup {
				seen[item.EventID] = struct{}{}
				eventIDs = append(eventIDs, item.EventID)
			}
		}
	}
	f.holds = kept
	return eventIDs
}

func (f *fakeReservationRepo) ListTicketItemsByEvent(_ context.Context, eventID string) ([]domain.TicketItem, error) {
	var out []domain.TicketItem
	for _, item := range f.items {
		if item.EventID == eventID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeCache records invalidations and serves pre-seeded entries.
type fakeCache struct {
	data        map[string][]domain.ItemAvailability
	sets        map[string][]domain.ItemAvailability
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string][]domain.ItemAvailability),
		sets: make(map[string][]domain.ItemAvailability),
	}
}

func (c *fakeCache) GetAvailability(_ context.Context, eventID string) ([]domain.ItemAvailability, bool) {
	items, ok := c.data[eventID]
	return items, ok
}

func (c *fakeCache) SetAvailability(_ context.Context, eventID string, items []domain.ItemAvailability) {
	c.sets[eventID] = items
}

func (c *fakeCache) Invalidate(_ context.Context, eventIDs ...string) {
	c.invalidated = append(c.invalidated, eventIDs...)
}

// fakeOrderRepo is an in-memory OrderRepository with rollback-on-error
// transactions.
type fakeOrderRepo struct {
	orders map[string]domain.Order
}

func newFakeOrderRepo(orders ...domain.Order) *fakeOrderRepo {
	byID := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &fakeOrderRepo{orders: byID}
}

func (f *fakeOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[string]domain.Order, len(f.orders))
	for id, o := range f.orders {
		snapshot[id] = o
	}
	if err := fn(ctx); err != nil {
		f.orders = snapshot
		return err
	}
	return nil
}

func (f *fakeOrderRepo) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return f.GetOrder(ctx, orderID)
}

func (f *fakeOrderRepo) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) CreateOrder(_ context.Context, order domain.Order) error {
	for _, o := range f.orders {
		if o.HoldSetID == order.HoldSetID {
			return domain.ErrIdempotencyConflict
		}
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) UpdateOrderState(_ context.Context, orderID string, status domain.OrderStatus, entry domain.WebhookLogEntry) error {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.LastWebhookStatus = entry.EventType
	at := entry.At
	order.LastWebhookAt = &at
	order.WebhookLogs = append(order.WebhookLogs, entry)
	order.UpdatedAt = entry.At
	f.orders[orderID] = order
	return nil
}

// fakeHoldFinalizer stands in for the reservation service in order
// tests.
type fakeHoldFinalizer struct {
	sets       map[string]domain.HoldSet
	consumed   map[string]string
	released   []string
	consumeErr error
	releaseErr error
}

func newFakeHoldFinalizer(sets ...domain.HoldSet) *fakeHoldFinalizer {
	byID := make(map[string]domain.HoldSet, len(sets))
	for _, s := range sets {
		byID[s.ID] = s
	}
	return &fakeHoldFinalizer{sets: byID, consumed: make(map[string]string)}
}

func (f *fakeHoldFinalizer) HoldSet(_ context.Context, holdSetID string) (domain.HoldSet, error) {
	set, ok := f.sets[holdSetID]
	if !ok {
		return domain.HoldSet{}, domain.ErrHoldNotFound
	}
	return set, nil
}

func (f *fakeHoldFinalizer) Consume(_ context.Context, holdSetID, orderID string) error {
	if f.consumeErr != nil {
		return f.consumeErr
	}
	if _, ok := f.sets[holdSetID]; !ok {
		return domain.ErrHoldExpired
	}
	f.consumed[holdSetID] = orderID
	return nil
}

func (f *fakeHoldFinalizer) Release(_ context.Context, holdSetID string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.released = append(f.released, holdSetID)
	return nil
}

// fakePublisher records published order-status events.
type fakePublisher struct {
	published []publishedStatus
	err       error
}

type publishedStatus struct {
	Order     domain.Order
	EventType string
}

func (f *fakePublisher) PublishOrderStatus(_ context.Context, order domain.Order, eventType string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedStatus{Order: order, EventType: eventType})
	return nil
}

// fakeEventLogRepo is an in-memory EventLogRepository keyed by
// idempotency key.
type fakeEventLogRepo struct {
	events map[string]domain.WebhookEvent
}

func newFakeEventLogRepo() *fakeEventLogRepo {
	return &fakeEventLogRepo{events: make(map[string]domain.WebhookEvent)}
}

func (f *fakeEventLogRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.WebhookEvent, error) {
	ev, ok := f.events[key]
	if !ok {
		return nil, nil
	}
	out := ev
	return &out, nil
}

func (f *fakeEventLogRepo) InsertEvent(_ context.Context, ev domain.WebhookEvent) error {
	if _, exists := f.events[ev.IdempotencyKey]; exists {
		return domain.ErrIdempotencyConflict
	}
	f.events[ev.IdempotencyKey] = ev
	return nil
}

func (f *fakeEventLogRepo) MarkProcessed(_ context.Context, eventID string, status domain.ProcessingStatus, details string, at time.Time) error {
	for key, ev := range f.events {
		if ev.ID == eventID {
			ev.Processed = true
			ev.ProcessedAt = &at
			ev.ProcessingStatus = status
			ev.ProcessingDetails = details
			f.events[key] = ev
			return nil
		}
	}
	return domain.ErrOrderNotFound
}

func (f *fakeEventLogRepo) byID(eventID string) (domain.WebhookEvent, bool) {
	for _, ev := range f.events {
		if ev.ID == eventID {
			return ev, true
		}
	}
	return domain.WebhookEvent{}, false
}

// fakeTransitioner records dispatched order events. When block is set
// it waits for context cancellation, emulating a stuck handler.
type fakeTransitioner struct {
	applied []ApplyEventInput
	result  ApplyEventResult
	err     error
	block   bool
}

func (f *fakeTransitioner) ApplyEvent(ctx context.Context, in ApplyEventInput) (ApplyEventResult, error) {
	if f.block {
		<-ctx.Done()
		return ApplyEventResult{}, ctx.Err()
	}
	if f.err != nil {
		return ApplyEventResult{}, f.err
	}
	f.applied = append(f.applied, in)
	return f.result, nil
}

// fakeCatalogRepo is an in-memory CatalogRepository.
type fakeCatalogRepo struct {
	events []domain.Event
	items  []domain.TicketItem
}

func (f *fakeCatalogRepo) CreateEvent(_ context.Context, event domain.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeCatalogRepo) ListEvents(_ context.Context) ([]domain.Event, error) {
	return f.events, nil
}

func (f *fakeCatalogRepo) CreateTicketItem(_ context.Context, item domain.TicketItem) error {
	known := false
	for _, ev := range f.events {
		if ev.ID == item.EventID {
			known = true
			break
		}
	}
	if !known {
		return domain.ErrEventNotFound
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeCatalogRepo) ListTicketItemsByEvent(_ context.Context, eventID string) ([]domain.TicketItem, error) {
	var out []domain.TicketItem
	for _, item := range f.items {
		if item.EventID == eventID {
			out = append(out, item)
		}
	}
	return out, nil
}
