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

// OrderService is the minimal interface needed for the order endpoints.
type OrderService interface {
	Create(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
}

// HandleCreateOrder returns an HTTP handler for placing an order
// against an active hold set.
func HandleCreateOrder(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		order, err := svc.Create(r.Context(), app.CreateOrderInput{
			HoldSetID:       req.HoldSetID,
			BuyerName:       req.BuyerName,
			BuyerEmail:      req.BuyerEmail,
			TotalPriceCents: req.TotalPriceCents,
		})
		if err != nil {
			writeOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, orderResponseFrom(order))
	}
}

// HandleGetOrder returns an HTTP handler for reading an order,
// including its webhook audit trail.
func HandleGetOrder(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		orderID, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			switch err {
			case domain.ErrInvalidID:
				writeError(w, http.StatusNotFound, codeInvalidID, err.Error())
			case domain.ErrOrderNotFound:
				writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, orderResponseFrom(order))
	}
}

func writeOrderError(w http.ResponseWriter, err error) {
	var missing *domain.MissingFieldError
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, codeHoldNotFound, err.Error())
	case errors.Is(err, domain.ErrHoldExpired):
		writeError(w, http.StatusConflict, codeHoldExpired, err.Error())
	case errors.Is(err, domain.ErrHoldConsumed):
		writeError(w, http.StatusConflict, codeHoldConsumed, err.Error())
	case errors.Is(err, domain.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, codeIdempotencyConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func parseOrderPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		return "", false
	}
	if parts[0] != "orders" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type createOrderRequest struct {
	HoldSetID       string `json:"hold_set_id"`
	BuyerName       string `json:"buyer_name"`
	BuyerEmail      string `json:"buyer_email"`
	TotalPriceCents int64  `json:"total_price_cents"`
}

type orderResponse struct {
	ID                string                   `json:"id"`
	HoldSetID         string                   `json:"hold_set_id"`
	BuyerName         string                   `json:"buyer_name"`
	BuyerEmail        string                   `json:"buyer_email"`
	Quantity          int                      `json:"quantity"`
	TotalPriceCents   int64                    `json:"total_price_cents"`
	Status            string                   `json:"status"`
	LastWebhookStatus string                   `json:"last_webhook_status,omitempty"`
	LastWebhookAt     *time.Time               `json:"last_webhook_at,omitempty"`
	WebhookLogs       []domain.WebhookLogEntry `json:"webhook_logs"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func orderResponseFrom(order domain.Order) orderResponse {
	logs := order.WebhookLogs
	if logs == nil {
		logs = []domain.WebhookLogEntry{}
	}
	return orderResponse{
		ID:                order.ID,
		HoldSetID:         order.HoldSetID,
		BuyerName:         order.BuyerName,
		BuyerEmail:        order.BuyerEmail,
		Quantity:          order.Quantity,
		TotalPriceCents:   order.TotalPriceCents,
		Status:            string(order.Status),
		LastWebhookStatus: order.LastWebhookStatus,
		LastWebhookAt:     order.LastWebhookAt,
		WebhookLogs:       logs,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}
