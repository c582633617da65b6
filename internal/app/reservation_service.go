package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/retry"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicketItemForUpdate(ctx context.Context, itemID string) (domain.TicketItem, error)
	FindHoldsByRequestToken(ctx context.Context, token string) ([]domain.Hold, error)
	SumActiveHolds(ctx context.Context, itemID string, now time.Time) (int, error)
	SumConsumedHolds(ctx context.Context, itemID string) (int, error)
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHoldsForUpdate(ctx context.Context, holdSetID string) ([]domain.Hold, error)
	GetHoldsBySet(ctx context.Context, holdSetID string) ([]domain.Hold, error)
	LinkHoldsToOrder(ctx context.Context, holdSetID, orderID string) error
	DeleteUnconsumedHolds(ctx context.Context, holdSetID string) ([]string, error)
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int, []string, error)
	ListTicketItemsByEvent(ctx context.Context, eventID string) ([]domain.TicketItem, error)
}

// AvailabilityCache is the derived-availability cache port. All methods
// are best-effort.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, eventID string) ([]domain.ItemAvailability, bool)
	SetAvailability(ctx context.Context, eventID string, items []domain.ItemAvailability)
	Invalidate(ctx context.Context, eventIDs ...string)
}

// ReservationService owns every hold mutation. No other code path may
// write hold rows.
type ReservationService struct {
	repo    ReservationRepository
	cache   AvailabilityCache
	clock   clock.Clock
	log     logrus.FieldLogger
	holdTTL time.Duration
	retry   retry.Policy
}

const defaultHoldTTL = 15 * time.Minute

type ReservationServiceOption func(*ReservationService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) ReservationServiceOption {
	return func(s *ReservationService) {
		s.retry = p
	}
}

func NewReservationService(repo ReservationRepository, cache AvailabilityCache, clk clock.Clock, log logrus.FieldLogger, opts ...ReservationServiceOption) *ReservationService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	svc := &ReservationService{
		repo:    repo,
		cache:   cache,
		clock:   clk,
		log:     log,
		holdTTL: defaultHoldTTL,
		retry:   retry.Default,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type SeatSelection struct {
	TicketItemID string
	Quantity     int
}

type ReserveInput struct {
	RequesterID string
	// RequestToken makes retries idempotent; generated when empty.
	RequestToken string
	Selections   []SeatSelection
}

func (in ReserveInput) validate() error {
	if in.RequesterID == "" {
		return domain.ErrRequesterRequired
	}
	if len(in.Selections) == 0 {
		return domain.ErrEmptySelection
	}
	seen := make(map[string]struct{}, len(in.Selections))
	for _, sel := range in.Selections {
		if sel.TicketItemID == "" {
			return domain.ErrInvalidID
		}
		if sel.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		if _, dup := seen[sel.TicketItemID]; dup {
			return domain.ErrDuplicateSelection
		}
		seen[sel.TicketItemID] = struct{}{}
	}
	return nil
}

// Reserve atomically holds the requested quantities of every selected
// item for the hold TTL. The call is all-or-nothing: any shortfall
// rolls back the whole set and the returned error lists each failing
// item. Items are processed in ascending ID order so concurrent
// multi-item requests acquire row locks in the same order.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (domain.HoldSet, error) {
	if err := in.validate(); err != nil {
		return domain.HoldSet{}, err
	}

	token := in.RequestToken
	if token == "" {
		token = uuid.NewString()
	}

	selections := make([]SeatSelection, len(in.Selections))
	copy(selections, in.Selections)
	sort.Slice(selections, func(i, j int) bool {
		return selections[i].TicketItemID < selections[j].TicketItemID
	})

	var (
		set      domain.HoldSet
		eventIDs []string
	)
	err := s.retry.Do(ctx, retry.IsTransient, func(ctx context.Context) error {
		set = domain.HoldSet{}
		eventIDs = nil
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			reused, existing, err := s.reuseByToken(txCtx, token, selections)
			if err != nil {
				return err
			}
			if reused {
				set = existing
				return nil
			}

			created, touched, err := s.createHolds(txCtx, in.RequesterID, token, selections)
			if err != nil {
				return err
			}
			set = created
			eventIDs = touched
			return nil
		})
	})
	if err != nil {
		return domain.HoldSet{}, err
	}

	s.cache.Invalidate(ctx, eventIDs...)
	return set, nil
}

func (s *ReservationService) reuseByToken(ctx context.Context, token string, selections []SeatSelection) (bool, domain.HoldSet, error) {
	existing, err := s.repo.FindHoldsByRequestToken(ctx, token)
	if err != nil {
		return false, domain.HoldSet{}, err
	}
	if len(existing) == 0 {
		return false, domain.HoldSet{}, nil
	}

	byItem := make(map[string]int, len(existing))
	for _, h := range existing {
		byItem[h.TicketItemID] = h.Quantity
	}
	if len(byItem) != len(selections) {
		return false, domain.HoldSet{}, domain.ErrIdempotencyConflict
	}
	for _, sel := range selections {
		if qty, ok := byItem[sel.TicketItemID]; !ok || qty != sel.Quantity {
			return false, domain.HoldSet{}, domain.ErrIdempotencyConflict
		}
	}
	return true, holdSetFrom(existing), nil
}

func (s *ReservationService) createHolds(ctx context.Context, requesterID, token string, selections []SeatSelection) (domain.HoldSet, []string, error) {
	now := s.clock.Now()
	setID := uuid.NewString()
	expiresAt := now.Add(s.holdTTL)

	var (
		shortfalls []domain.Shortfall
		holds      []domain.Hold
		eventIDs   []string
		seenEvent  = make(map[string]struct{})
	)

	for _, sel := range selections {
		item, err := s.repo.GetTicketItemForUpdate(ctx, sel.TicketItemID)
		if err != nil {
			return domain.HoldSet{}, nil, err
		}

		available := 0
		if item.Status != domain.TicketItemWithdrawn {
			active, err := s.repo.SumActiveHolds(ctx, item.ID, now)
			if err != nil {
				return domain.HoldSet{}, nil, err
			}
			consumed, err := s.repo.SumConsumedHolds(ctx, item.ID)
			if err != nil {
				return domain.HoldSet{}, nil, err
			}
			available = item.TotalQuantity - active - consumed
		}

		if sel.Quantity > available {
			shortfalls = append(shortfalls, domain.Shortfall{
				TicketItemID: item.ID,
				Requested:    sel.Quantity,
				Available:    available,
			})
			continue
		}
		// Once any item fell short the whole call fails; keep checking
		// the rest for the aggregated error, but stop inserting.
		if len(shortfalls) > 0 {
			continue
		}

		hold := domain.Hold{
			ID:           uuid.NewString(),
			HoldSetID:    setID,
			TicketItemID: item.ID,
			RequesterID:  requesterID,
			Quantity:     sel.Quantity,
			RequestToken: token,
			ExpiresAt:    expiresAt,
			CreatedAt:    now,
		}
		if err := s.repo.CreateHold(ctx, hold); err != nil {
			// A concurrent retry with the same token won the insert;
			// surface the conflict so the caller re-reads.
			return domain.HoldSet{}, nil, err
		}
		holds = append(holds, hold)
		if _, ok := seenEvent[item.EventID]; !ok {
			seenEvent[item.EventID] = struct{}{}
			eventIDs = append(eventIDs, item.EventID)
		}
	}

	if len(shortfalls) > 0 {
		return domain.HoldSet{}, nil, &domain.InsufficientInventoryError{Shortfalls: shortfalls}
	}

	return domain.HoldSet{
		ID:          setID,
		RequesterID: requesterID,
		ExpiresAt:   expiresAt,
		Holds:       holds,
	}, eventIDs, nil
}

// Release removes the unconsumed holds of a set. It is idempotent:
// unknown, expired, or already-released sets are a no-op.
func (s *ReservationService) Release(ctx context.Context, holdSetID string) error {
	if holdSetID == "" {
		return domain.ErrInvalidID
	}
	eventIDs, err := s.repo.DeleteUnconsumedHolds(ctx, holdSetID)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, eventIDs...)
	return nil
}

// Consume links every hold of the set to the order, converting the
// temporary claim into a permanent allocation. It fails with
// ErrHoldExpired once any hold lapsed (or the set was already swept)
// and is idempotent for the same order.
func (s *ReservationService) Consume(ctx context.Context, holdSetID, orderID string) error {
	if holdSetID == "" || orderID == "" {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		holds, err := s.repo.GetHoldsForUpdate(txCtx, holdSetID)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			// Swept already; the claim is gone.
			return domain.ErrHoldExpired
		}

		pending := false
		for _, h := range holds {
			if h.OrderID == orderID {
				continue
			}
			if h.Consumed() {
				return domain.ErrHoldConsumed
			}
			if !h.ExpiresAt.After(now) {
				return domain.ErrHoldExpired
			}
			pending = true
		}
		if !pending {
			return nil
		}
		return s.repo.LinkHoldsToOrder(txCtx, holdSetID, orderID)
	})
}

// HoldSet returns the current holds of a set.
func (s *ReservationService) HoldSet(ctx context.Context, holdSetID string) (domain.HoldSet, error) {
	if holdSetID == "" {
		return domain.HoldSet{}, domain.ErrInvalidID
	}
	holds, err := s.repo.GetHoldsBySet(ctx, holdSetID)
	if err != nil {
		return domain.HoldSet{}, err
	}
	if len(holds) == 0 {
		return domain.HoldSet{}, domain.ErrHoldNotFound
	}
	return holdSetFrom(holds), nil
}

// SweepExpired reclaims expired unconsumed holds as one set operation.
// Safe to run concurrently with itself and with Reserve/Consume.
func (s *ReservationService) SweepExpired(ctx context.Context) (int, error) {
	count, eventIDs, err := s.repo.DeleteExpiredHolds(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.cache.Invalidate(ctx, eventIDs...)
		s.log.WithField("reclaimed", count).Info("expired holds swept")
	}
	return count, nil
}

// Availability computes the derived per-item availability for an event
// through the read-through cache.
func (s *ReservationService) Availability(ctx context.Context, eventID string) ([]domain.ItemAvailability, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	if items, ok := s.cache.GetAvailability(ctx, eventID); ok {
		return items, nil
	}

	var out []domain.ItemAvailability
	err := s.retry.Do(ctx, retry.IsTransient, func(ctx context.Context) error {
		items, err := s.repo.ListTicketItemsByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		out = make([]domain.ItemAvailability, 0, len(items))
		for _, item := range items {
			available := 0
			if item.Status != domain.TicketItemWithdrawn {
				active, err := s.repo.SumActiveHolds(ctx, item.ID, now)
				if err != nil {
					return err
				}
				consumed, err := s.repo.SumConsumedHolds(ctx, item.ID)
				if err != nil {
					return err
				}
				available = item.TotalQuantity - active - consumed
				if available < 0 {
					available = 0
				}
			}
			status := item.Status
			if status == domain.TicketItemAvailable && available == 0 {
				status = domain.TicketItemSoldOut
			}
			out = append(out, domain.ItemAvailability{
				TicketItemID: item.ID,
				Name:         item.Name,
				Total:        item.TotalQuantity,
				Available:    available,
				Status:       status,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.SetAvailability(ctx, eventID, out)
	return out, nil
}

func holdSetFrom(holds []domain.Hold) domain.HoldSet {
	set := domain.HoldSet{
		ID:          holds[0].HoldSetID,
		RequesterID: holds[0].RequesterID,
		ExpiresAt:   holds[0].ExpiresAt,
		Holds:       holds,
	}
	return set
}

// IsContention reports the expected, recoverable business conditions
// that must not be logged as system failures.
func IsContention(err error) bool {
	var insufficient *domain.InsufficientInventoryError
	return errors.As(err, &insufficient) || errors.Is(err, domain.ErrHoldExpired)
}
