package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/domain"
)

const (
	signatureHeader   = "x-webhook-signature"
	timestampHeader   = "x-webhook-timestamp"
	eventTypeHeader   = "x-webhook-event-type"
	idempotencyHeader = "x-idempotency-key"
	sourceHeader      = "x-webhook-source"
)

// maxWebhookBody bounds provider payloads; anything larger is not a
// webhook this service handles.
const maxWebhookBody = 1 << 20

// WebhookIngestor is the minimal interface needed to accept a webhook
// delivery.
type WebhookIngestor interface {
	Ingest(ctx context.Context, in app.IngestInput) (app.ProcessingResult, error)
}

// HandleWebhook returns an HTTP handler for provider webhook
// deliveries. The status code is the retry contract with the sender:
// 200 means done (including duplicates and unknown event types), 422
// means the event was accepted but processing failed and the sender
// should redeliver, 401 means the delivery was rejected outright.
func HandleWebhook(svc WebhookIngestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "unable to read request body")
			return
		}

		result, err := svc.Ingest(r.Context(), app.IngestInput{
			Body:           body,
			Signature:      r.Header.Get(signatureHeader),
			Timestamp:      r.Header.Get(timestampHeader),
			EventType:      r.Header.Get(eventTypeHeader),
			IdempotencyKey: r.Header.Get(idempotencyHeader),
			Source:         r.Header.Get(sourceHeader),
		})
		resp := webhookResponse{
			EventID:   result.EventID,
			Status:    string(result.Status),
			Details:   result.Details,
			Duplicate: result.Duplicate,
		}
		if err != nil {
			// An event that was accepted but failed processing answers
			// 422 so the sender redelivers; a rejected delivery never
			// has an event ID.
			if result.EventID != "" {
				writeJSON(w, http.StatusUnprocessableEntity, resp)
				return
			}
			writeWebhookError(w, err)
			return
		}

		if result.Status == domain.ProcessingError {
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeWebhookError(w http.ResponseWriter, err error) {
	var missing *domain.MissingFieldError
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, codeInvalidSignature, err.Error())
	case errors.Is(err, domain.ErrEventTypeRequired):
		writeError(w, http.StatusBadRequest, codeEventTypeRequired, err.Error())
	case errors.Is(err, domain.ErrHandlerTimeout):
		writeError(w, http.StatusUnprocessableEntity, codeProcessingFailed, err.Error())
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, codeMissingRequiredField, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type webhookResponse struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
	Details   string `json:"details,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
