package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/domain"
)

// Reserver is the minimal interface needed to create and release
// reservations.
type Reserver interface {
	Reserve(ctx context.Context, in app.ReserveInput) (domain.HoldSet, error)
	Release(ctx context.Context, holdSetID string) error
}

// HandleCreateReservation returns an HTTP handler for atomic multi-item
// reservations. Mount it behind RequireIdentity.
func HandleCreateReservation(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createReservationRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		selections := make([]app.SeatSelection, 0, len(req.SeatSelections))
		for _, sel := range req.SeatSelections {
			selections = append(selections, app.SeatSelection{
				TicketItemID: sel.TicketID,
				Quantity:     sel.Quantity,
			})
		}

		set, err := svc.Reserve(r.Context(), app.ReserveInput{
			RequesterID:  requesterFromContext(r.Context()),
			RequestToken: req.RequestToken,
			Selections:   selections,
		})
		if err != nil {
			writeReserveError(w, err)
			return
		}

		resp := createReservationResponse{
			Success:   true,
			ExpiresAt: set.ExpiresAt,
			Message:   "reservation confirmed",
		}
		resp.Reservations = make([]reservationView, 0, len(set.Holds))
		for _, hold := range set.Holds {
			resp.Reservations = append(resp.Reservations, reservationView{
				ID:        hold.ID,
				HoldSetID: hold.HoldSetID,
				TicketID:  hold.TicketItemID,
				Quantity:  hold.Quantity,
				ExpiresAt: hold.ExpiresAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleReleaseReservation returns an HTTP handler for explicit release
// of a hold set before it expires.
func HandleReleaseReservation(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		holdSetID, ok := parseReservationPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if err := svc.Release(r.Context(), holdSetID); err != nil {
			switch err {
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeReserveError maps a failed reservation to the aggregate failure
// body. Insufficient inventory lists every failing item so the caller
// can adjust the whole selection in one round trip.
func writeReserveError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		details := make([]string, 0, len(insufficient.Shortfalls))
		for _, s := range insufficient.Shortfalls {
			details = append(details, s.String())
		}
		writeJSON(w, http.StatusBadRequest, reservationFailure{
			Error:   "Reservation failed",
			Details: details,
		})
		return
	}

	switch err {
	case domain.ErrRequesterRequired:
		writeError(w, http.StatusUnauthorized, codeRequesterRequired, err.Error())
	case domain.ErrEmptySelection:
		writeError(w, http.StatusBadRequest, codeEmptySelection, err.Error())
	case domain.ErrDuplicateSelection:
		writeError(w, http.StatusBadRequest, codeDuplicateSelection, err.Error())
	case domain.ErrInvalidQuantity:
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrTicketItemNotFound:
		writeError(w, http.StatusNotFound, codeTicketItemNotFound, err.Error())
	case domain.ErrIdempotencyConflict:
		writeError(w, http.StatusConflict, codeIdempotencyConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func parseReservationPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		return "", false
	}
	if parts[0] != "reservations" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type seatSelectionRequest struct {
	TicketID string `json:"ticketId"`
	Quantity int    `json:"quantity"`
}

type createReservationRequest struct {
	SeatSelections []seatSelectionRequest `json:"seatSelections"`
	RequestToken   string                 `json:"requestToken,omitempty"`
}

type reservationView struct {
	ID        string    `json:"id"`
	HoldSetID string    `json:"holdSetId"`
	TicketID  string    `json:"ticketId"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type createReservationResponse struct {
	Success      bool              `json:"success"`
	Reservations []reservationView `json:"reservations"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	Message      string            `json:"message"`
}

type reservationFailure struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}
