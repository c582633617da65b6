package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeMissingRequiredField  = "missing_required_field"
	codeInvalidStartsAt       = "invalid_starts_at"
	codeInvalidID             = "invalid_id"
	codeEventNameRequired     = "event_name_required"
	codeItemNameRequired      = "item_name_required"
	codeInvalidQuantity       = "invalid_quantity"
	codeEmptySelection        = "empty_selection"
	codeDuplicateSelection    = "duplicate_selection"
	codeRequesterRequired     = "requester_required"
	codeIdempotencyConflict   = "idempotency_conflict"
	codeEventNotFound         = "event_not_found"
	codeTicketItemNotFound    = "ticket_item_not_found"
	codeHoldNotFound          = "hold_not_found"
	codeHoldExpired           = "hold_expired"
	codeHoldConsumed          = "hold_consumed"
	codeOrderNotFound         = "order_not_found"
	codeOrderNotCancelable    = "order_not_cancelable"
	codeInvalidSignature      = "invalid_signature"
	codeEventTypeRequired     = "event_type_required"
	codeProcessingFailed      = "processing_failed"
	codeForbidden             = "forbidden"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
