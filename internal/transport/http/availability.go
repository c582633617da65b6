package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/stagepass/ticketing/internal/domain"
)

// AvailabilityReader is the minimal interface needed to read per-item
// availability for an event.
type AvailabilityReader interface {
	Availability(ctx context.Context, eventID string) ([]domain.ItemAvailability, error)
}

// HandleAvailability returns an HTTP handler for the public
// availability view of an event.
func HandleAvailability(svc AvailabilityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		eventID, ok := parseAvailabilityPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		items, err := svc.Availability(r.Context(), eventID)
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

		writeJSON(w, http.StatusOK, availabilityResponse{
			EventID: eventID,
			Items:   items,
		})
	}
}

func parseAvailabilityPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "events" || parts[2] != "availability" {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type availabilityResponse struct {
	EventID string                    `json:"event_id"`
	Items   []domain.ItemAvailability `json:"items"`
}
