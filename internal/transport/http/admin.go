package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/domain"
)

// AdminEventService is the minimal interface needed for admin event endpoints.
type AdminEventService interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
}

// AdminItemService is the minimal interface needed for admin ticket item endpoints.
type AdminItemService interface {
	CreateTicketItem(ctx context.Context, in app.CreateTicketItemInput) (domain.TicketItem, error)
	ListTicketItems(ctx context.Context, eventID string) ([]domain.TicketItem, error)
}

// HandleAdminEvents returns an HTTP handler for admin event creation/listing.
func HandleAdminEvents(svc AdminEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			events, err := svc.ListEvents(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			resp := make([]eventResponse, 0, len(events))
			for _, event := range events {
				resp = append(resp, eventResponse{
					ID:       event.ID,
					Name:     event.Name,
					StartsAt: event.StartsAt,
				})
			}
			writeJSON(w, http.StatusOK, resp)
			return
		case http.MethodPost:
			var req createEventRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if req.Name == "" {
				writeError(w, http.StatusBadRequest, codeEventNameRequired, domain.ErrEventNameRequired.Error())
				return
			}

			var startsAt *time.Time
			if req.StartsAt != "" {
				parsed, err := time.Parse(time.RFC3339, req.StartsAt)
				if err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
					return
				}
				startsAt = &parsed
			}

			event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
				Name:     req.Name,
				StartsAt: startsAt,
			})
			if err != nil {
				switch err {
				case domain.ErrEventNameRequired:
					writeError(w, http.StatusBadRequest, codeEventNameRequired, err.Error())
				default:
					writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				}
				return
			}

			writeJSON(w, http.StatusCreated, eventResponse{
				ID:       event.ID,
				Name:     event.Name,
				StartsAt: event.StartsAt,
			})
			return
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
	}
}

// HandleAdminTicketItems returns an HTTP handler for admin ticket item
// creation/listing under an event.
func HandleAdminTicketItems(svc AdminItemService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, ok := parseAdminEventItemsPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			items, err := svc.ListTicketItems(r.Context(), eventID)
			if err != nil {
				switch err {
				case domain.ErrInvalidID:
					writeError(w, http.StatusNotFound, codeInvalidID, err.Error())
				case domain.ErrEventNotFound:
					writeError(w, http.StatusNotFound, codeEventNotFound, err.Error())
				default:
					writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				}
				return
			}
			resp := make([]ticketItemResponse, 0, len(items))
			for _, item := range items {
				resp = append(resp, ticketItemResponseFrom(item))
			}
			writeJSON(w, http.StatusOK, resp)
			return
		case http.MethodPost:
			var req createTicketItemRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if req.Name == "" {
				writeError(w, http.StatusBadRequest, codeItemNameRequired, domain.ErrItemNameRequired.Error())
				return
			}
			if req.TotalQuantity <= 0 {
				writeError(w, http.StatusBadRequest, codeInvalidQuantity, domain.ErrInvalidQuantity.Error())
				return
			}

			item, err := svc.CreateTicketItem(r.Context(), app.CreateTicketItemInput{
				EventID:       eventID,
				Name:          req.Name,
				TotalQuantity: req.TotalQuantity,
			})
			if err != nil {
				switch err {
				case domain.ErrInvalidID:
					writeError(w, http.StatusNotFound, codeInvalidID, err.Error())
				case domain.ErrItemNameRequired, domain.ErrInvalidQuantity:
					code := codeInvalidQuantity
					if err == domain.ErrItemNameRequired {
						code = codeItemNameRequired
					}
					writeError(w, http.StatusBadRequest, code, err.Error())
				case domain.ErrEventNotFound:
					writeError(w, http.StatusNotFound, codeEventNotFound, err.Error())
				default:
					writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				}
				return
			}

			writeJSON(w, http.StatusCreated, ticketItemResponseFrom(item))
			return
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
	}
}

// OrderCanceler is the minimal interface needed for the admin cancel endpoint.
type OrderCanceler interface {
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
}

// HandleAdminCancelOrder returns an HTTP handler for cancelling an order.
// The request body is optional and may carry a reason.
func HandleAdminCancelOrder(svc OrderCanceler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		orderID, ok := parseAdminOrderCancelPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req cancelOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, req.Reason)
		if err != nil {
			switch err {
			case domain.ErrInvalidID:
				writeError(w, http.StatusNotFound, codeInvalidID, err.Error())
			case domain.ErrOrderNotFound:
				writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
			case domain.ErrOrderNotCancelable:
				writeError(w, http.StatusConflict, codeOrderNotCancelable, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, orderResponseFrom(order))
	}
}

type createEventRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at,omitempty"`
}

type eventResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type createTicketItemRequest struct {
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
}

type ticketItemResponse struct {
	ID            string `json:"id"`
	EventID       string `json:"event_id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
	Status        string `json:"status"`
}

func ticketItemResponseFrom(item domain.TicketItem) ticketItemResponse {
	return ticketItemResponse{
		ID:            item.ID,
		EventID:       item.EventID,
		Name:          item.Name,
		TotalQuantity: item.TotalQuantity,
		Status:        string(item.Status),
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

func parseAdminOrderCancelPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "admin" || parts[1] != "orders" || parts[3] != "cancel" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func parseAdminEventItemsPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "admin" || parts[1] != "events" || parts[3] != "items" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
