package http

import (
	"context"
	"net/http"
)

const requesterHeader = "X-Requester-ID"

type requesterKey struct{}

// RequireIdentity rejects requests that carry no requester identity.
// The gateway in front of this service authenticates the caller and
// forwards the resolved identity in X-Requester-ID.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requester := r.Header.Get(requesterHeader)
		if requester == "" {
			writeError(w, http.StatusUnauthorized, codeRequesterRequired, "requester identity required")
			return
		}
		ctx := context.WithValue(r.Context(), requesterKey{}, requester)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requesterFromContext(ctx context.Context) string {
	requester, _ := ctx.Value(requesterKey{}).(string)
	return requester
}
