package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/domain"
)

type EventLogRepository interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.WebhookEvent, error)
	InsertEvent(ctx context.Context, ev domain.WebhookEvent) error
	MarkProcessed(ctx context.Context, eventID string, status domain.ProcessingStatus, details string, at time.Time) error
}

// OrderTransitioner is the slice of the order state machine the
// gateway dispatches to.
type OrderTransitioner interface {
	ApplyEvent(ctx context.Context, in ApplyEventInput) (ApplyEventResult, error)
}

// WebhookService is the signature-verified, idempotent ingestion
// pipeline: verify, dedup, persist, dispatch, record outcome.
type WebhookService struct {
	repo           EventLogRepository
	orders         OrderTransitioner
	verifier       *SignatureVerifier
	clock          clock.Clock
	log            logrus.FieldLogger
	handlerTimeout time.Duration
}

const defaultHandlerTimeout = 5 * time.Second

type WebhookServiceOption func(*WebhookService)

// WithHandlerTimeout bounds business-logic dispatch per event.
func WithHandlerTimeout(d time.Duration) WebhookServiceOption {
	return func(s *WebhookService) {
		if d > 0 {
			s.handlerTimeout = d
		}
	}
}

func NewWebhookService(repo EventLogRepository, orders OrderTransitioner, verifier *SignatureVerifier, clk clock.Clock, log logrus.FieldLogger, opts ...WebhookServiceOption) *WebhookService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	svc := &WebhookService{
		repo:           repo,
		orders:         orders,
		verifier:       verifier,
		clock:          clk,
		log:            log,
		handlerTimeout: defaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type IngestInput struct {
	Body           []byte
	Signature      string
	Timestamp      string
	EventType      string
	IdempotencyKey string
	Source         string
}

type ProcessingResult struct {
	EventID   string
	Status    domain.ProcessingStatus
	Details   string
	Duplicate bool
}

// Ingest processes one webhook delivery. Redelivery of a successfully
// processed idempotency key returns the recorded outcome without
// re-running side effects; redelivery of an event that timed out or
// recorded an error is dispatched again.
func (s *WebhookService) Ingest(ctx context.Context, in IngestInput) (ProcessingResult, error) {
	if in.EventType == "" {
		return ProcessingResult{}, domain.ErrEventTypeRequired
	}
	if len(in.Body) == 0 || !json.Valid(in.Body) {
		return ProcessingResult{}, &domain.MissingFieldError{Field: "body"}
	}

	verified, err := s.verifier.Verify(in.Body, in.Signature, in.Timestamp)
	if err != nil {
		// Integrity failure: reject before anything is persisted.
		s.log.WithFields(logrus.Fields{
			"source":     in.Source,
			"event_type": in.EventType,
		}).Warn("webhook signature rejected")
		return ProcessingResult{}, err
	}

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	ev, result, done, err := s.acceptEvent(ctx, in, key, verified)
	if err != nil || done {
		return result, err
	}

	return s.process(ctx, ev)
}

// acceptEvent resolves the idempotency key to either a recorded
// outcome, an unprocessed event to (re)dispatch, or a freshly persisted
// row.
func (s *WebhookService) acceptEvent(ctx context.Context, in IngestInput, key string, verified bool) (domain.WebhookEvent, ProcessingResult, bool, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return domain.WebhookEvent{}, ProcessingResult{}, false, err
	}
	if existing != nil {
		if existing.Processed && existing.ProcessingStatus != domain.ProcessingError {
			return domain.WebhookEvent{}, ProcessingResult{
				EventID:   existing.ID,
				Status:    existing.ProcessingStatus,
				Details:   existing.ProcessingDetails,
				Duplicate: true,
			}, true, nil
		}
		// Unprocessed (timed out) and errored deliveries answer
		// non-2xx, so their redelivery must dispatch again.
		return *existing, ProcessingResult{}, false, nil
	}

	ev := domain.WebhookEvent{
		ID:             uuid.NewString(),
		Source:         in.Source,
		EventType:      in.EventType,
		Payload:        in.Body,
		IdempotencyKey: key,
		Verified:       verified,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			// A concurrent duplicate won the insert; report its outcome.
			winner, ferr := s.repo.FindByIdempotencyKey(ctx, key)
			if ferr == nil && winner != nil {
				return domain.WebhookEvent{}, ProcessingResult{
					EventID:   winner.ID,
					Status:    winner.ProcessingStatus,
					Details:   winner.ProcessingDetails,
					Duplicate: true,
				}, true, nil
			}
		}
		return domain.WebhookEvent{}, ProcessingResult{}, false, err
	}
	return ev, ProcessingResult{}, false, nil
}

func (s *WebhookService) process(ctx context.Context, ev domain.WebhookEvent) (ProcessingResult, error) {
	dctx, cancel := context.WithTimeout(ctx, s.handlerTimeout)
	defer cancel()

	note, derr := s.dispatch(dctx, ev)
	now := s.clock.Now()

	if derr != nil {
		if errors.Is(derr, context.DeadlineExceeded) {
			// Left unprocessed on purpose: redelivery re-runs the
			// handler instead of losing the event half-applied.
			s.log.WithField("event_id", ev.ID).Warn("webhook handler timed out")
			return ProcessingResult{EventID: ev.ID, Status: domain.ProcessingError, Details: "handler timeout"},
				domain.ErrHandlerTimeout
		}
		if err := s.repo.MarkProcessed(ctx, ev.ID, domain.ProcessingError, derr.Error(), now); err != nil {
			s.log.WithError(err).WithField("event_id", ev.ID).Error("failed to record webhook outcome")
		}
		return ProcessingResult{EventID: ev.ID, Status: domain.ProcessingError, Details: derr.Error()}, derr
	}

	if err := s.repo.MarkProcessed(ctx, ev.ID, domain.ProcessingSuccess, note, now); err != nil {
		return ProcessingResult{}, err
	}
	return ProcessingResult{EventID: ev.ID, Status: domain.ProcessingSuccess, Details: note}, nil
}

type orderEventPayload struct {
	OrderID  string `json:"order_id"`
	TicketID string `json:"ticket_id"`
	Reason   string `json:"reason"`
}

// dispatch routes by event type. Unknown types are recorded as
// processed successes so new provider events never fail the call.
func (s *WebhookService) dispatch(ctx context.Context, ev domain.WebhookEvent) (string, error) {
	switch ev.EventType {
	case domain.EventPaymentCompleted, domain.EventPaymentFailed,
		domain.EventTicketDelivered, domain.EventTicketDeliveryFailed:
		return s.dispatchOrderEvent(ctx, ev)
	default:
		return fmt.Sprintf("unhandled event type %q", ev.EventType), nil
	}
}

func (s *WebhookService) dispatchOrderEvent(ctx context.Context, ev domain.WebhookEvent) (string, error) {
	var payload orderEventPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return "", fmt.Errorf("malformed payload: %w", err)
	}
	if payload.OrderID == "" {
		return "", &domain.MissingFieldError{Field: "order_id"}
	}
	switch ev.EventType {
	case domain.EventTicketDelivered, domain.EventTicketDeliveryFailed:
		if payload.TicketID == "" {
			return "", &domain.MissingFieldError{Field: "ticket_id"}
		}
	}

	res, err := s.orders.ApplyEvent(ctx, ApplyEventInput{
		OrderID:   payload.OrderID,
		EventType: ev.EventType,
		Source:    ev.Source,
		TicketID:  payload.TicketID,
		Reason:    payload.Reason,
	})
	if err != nil {
		return "", err
	}
	return res.Note, nil
}
