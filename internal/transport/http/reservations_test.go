package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/domain"
)

type stubReserver struct {
	set        domain.HoldSet
	err        error
	releaseErr error
	reserved   []app.ReserveInput
	released   []string
}

func (s *stubReserver) Reserve(_ context.Context, in app.ReserveInput) (domain.HoldSet, error) {
	s.reserved = append(s.reserved, in)
	return s.set, s.err
}

func (s *stubReserver) Release(_ context.Context, holdSetID string) error {
	s.released = append(s.released, holdSetID)
	return s.releaseErr
}

func TestHandleCreateReservation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	successSet := domain.HoldSet{
		ID:          "set-1",
		RequesterID: "user-1",
		ExpiresAt:   now.Add(15 * time.Minute),
		Holds: []domain.Hold{
			{ID: "hold-1", HoldSetID: "set-1", TicketItemID: "item-1", Quantity: 2, ExpiresAt: now.Add(15 * time.Minute)},
		},
	}

	tests := []struct {
		name           string
		body           string
		requester      string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			body:           `{"seatSelections":[{"ticketId":"item-1","quantity":2}]}`,
			requester:      "user-1",
			expectedStatus: http.StatusOK,
			expectedSubstr: `"success":true`,
		},
		{
			name:           "missing identity",
			body:           `{"seatSelections":[{"ticketId":"item-1","quantity":2}]}`,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid json",
			body:           `{"seatSelections":`,
			requester:      "user-1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty selection",
			body:           `{"seatSelections":[]}`,
			requester:      "user-1",
			serviceErr:     domain.ErrEmptySelection,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "duplicate selection",
			body:           `{"seatSelections":[{"ticketId":"item-1","quantity":1},{"ticketId":"item-1","quantity":2}]}`,
			requester:      "user-1",
			serviceErr:     domain.ErrDuplicateSelection,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:      "insufficient inventory",
			body:      `{"seatSelections":[{"ticketId":"item-1","quantity":5}]}`,
			requester: "user-1",
			serviceErr: &domain.InsufficientInventoryError{Shortfalls: []domain.Shortfall{
				{TicketItemID: "item-1", Requested: 5, Available: 2},
				{TicketItemID: "item-2", Requested: 3, Available: 0},
			}},
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"error":"Reservation failed"`,
		},
		{
			name:           "unknown item",
			body:           `{"seatSelections":[{"ticketId":"missing","quantity":1}]}`,
			requester:      "user-1",
			serviceErr:     domain.ErrTicketItemNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "token conflict",
			body:           `{"seatSelections":[{"ticketId":"item-1","quantity":1}],"requestToken":"tok-1"}`,
			requester:      "user-1",
			serviceErr:     domain.ErrIdempotencyConflict,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "internal error",
			body:           `{"seatSelections":[{"ticketId":"item-1","quantity":1}]}`,
			requester:      "user-1",
			serviceErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubReserver{set: successSet, err: tt.serviceErr}

			req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewBufferString(tt.body))
			if tt.requester != "" {
				req.Header.Set(requesterHeader, tt.requester)
			}
			rec := httptest.NewRecorder()

			handler := RequireIdentity(HandleCreateReservation(svc))
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}

	t.Run("forwards the requester identity", func(t *testing.T) {
		t.Parallel()
		svc := &stubReserver{set: successSet}

		req := httptest.NewRequest(http.MethodPost, "/reservations",
			bytes.NewBufferString(`{"seatSelections":[{"ticketId":"item-1","quantity":2}]}`))
		req.Header.Set(requesterHeader, "user-42")
		rec := httptest.NewRecorder()

		RequireIdentity(HandleCreateReservation(svc)).ServeHTTP(rec, req)

		if len(svc.reserved) != 1 || svc.reserved[0].RequesterID != "user-42" {
			t.Fatalf("expected requester user-42, got %+v", svc.reserved)
		}
	})

	t.Run("shortfall details list every failing item", func(t *testing.T) {
		t.Parallel()
		svc := &stubReserver{err: &domain.InsufficientInventoryError{Shortfalls: []domain.Shortfall{
			{TicketItemID: "item-1", Requested: 5, Available: 2},
			{TicketItemID: "item-2", Requested: 3, Available: 0},
		}}}

		req := httptest.NewRequest(http.MethodPost, "/reservations",
			bytes.NewBufferString(`{"seatSelections":[{"ticketId":"item-1","quantity":5},{"ticketId":"item-2","quantity":3}]}`))
		req.Header.Set(requesterHeader, "user-1")
		rec := httptest.NewRecorder()

		RequireIdentity(HandleCreateReservation(svc)).ServeHTTP(rec, req)

		body := rec.Body.String()
		if !strings.Contains(body, `"ticket item item-1: requested 5, available 2"`) ||
			!strings.Contains(body, `"ticket item item-2: requested 3, available 0"`) {
			t.Fatalf("expected both shortfalls in details, got %q", body)
		}
	})

	t.Run("response views carry the ticket id", func(t *testing.T) {
		t.Parallel()
		svc := &stubReserver{set: successSet}

		req := httptest.NewRequest(http.MethodPost, "/reservations",
			bytes.NewBufferString(`{"seatSelections":[{"ticketId":"item-1","quantity":2}]}`))
		req.Header.Set(requesterHeader, "user-1")
		rec := httptest.NewRecorder()

		RequireIdentity(HandleCreateReservation(svc)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"ticketId":"item-1"`) {
			t.Fatalf("expected ticketId in reservation view, got %q", body)
		}
		if len(svc.reserved) != 1 || svc.reserved[0].Selections[0].TicketItemID != "item-1" {
			t.Fatalf("expected selection forwarded, got %+v", svc.reserved)
		}
	})
}

func TestHandleReleaseReservation(t *testing.T) {
	t.Parallel()

	t.Run("releases and returns 204", func(t *testing.T) {
		svc := &stubReserver{}
		req := httptest.NewRequest(http.MethodDelete, "/reservations/set-1", nil)
		req.Header.Set(requesterHeader, "user-1")
		rec := httptest.NewRecorder()

		RequireIdentity(HandleReleaseReservation(svc)).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if len(svc.released) != 1 || svc.released[0] != "set-1" {
			t.Fatalf("expected release of set-1, got %v", svc.released)
		}
	})

	t.Run("rejects non-delete methods", func(t *testing.T) {
		svc := &stubReserver{}
		req := httptest.NewRequest(http.MethodPost, "/reservations/set-1", nil)
		req.Header.Set(requesterHeader, "user-1")
		rec := httptest.NewRecorder()

		RequireIdentity(HandleReleaseReservation(svc)).ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("unknown path shape is a 404", func(t *testing.T) {
		svc := &stubReserver{}
		req := httptest.NewRequest(http.MethodDelete, "/reservations/set-1/extra", nil)
		req.Header.Set(requesterHeader, "user-1")
		rec := httptest.NewRecorder()

		RequireIdentity(HandleReleaseReservation(svc)).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
