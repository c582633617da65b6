package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/domain"
)

type CatalogRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	CreateTicketItem(ctx context.Context, item domain.TicketItem) error
	ListTicketItemsByEvent(ctx context.Context, eventID string) ([]domain.TicketItem, error)
}

// AdminService manages the catalog that reservations run against.
type AdminService struct {
	repo  CatalogRepository
	clock clock.Clock
}

func NewAdminService(repo CatalogRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	Name     string
	StartsAt *time.Time
}

func (s *AdminService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	if in.Name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	startsAt := s.clock.Now()
	if in.StartsAt != nil {
		startsAt = *in.StartsAt
	}

	event := domain.Event{
		ID:       uuid.NewString(),
		Name:     in.Name,
		StartsAt: startsAt,
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *AdminService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

type CreateTicketItemInput struct {
	EventID       string
	Name          string
	TotalQuantity int
}

func (s *AdminService) CreateTicketItem(ctx context.Context, in CreateTicketItemInput) (domain.TicketItem, error) {
	if in.EventID == "" {
		return domain.TicketItem{}, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.TicketItem{}, domain.ErrItemNameRequired
	}
	if in.TotalQuantity <= 0 {
		return domain.TicketItem{}, domain.ErrInvalidQuantity
	}

	item := domain.TicketItem{
		ID:            uuid.NewString(),
		EventID:       in.EventID,
		Name:          in.Name,
		TotalQuantity: in.TotalQuantity,
		Status:        domain.TicketItemAvailable,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.CreateTicketItem(ctx, item); err != nil {
		return domain.TicketItem{}, err
	}
	return item, nil
}

func (s *AdminService) ListTicketItems(ctx context.Context, eventID string) ([]domain.TicketItem, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListTicketItemsByEvent(ctx, eventID)
}
