package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID assigns each request an id unless the client already sent one.
// Handlers echo it in error envelopes so a failed call can be matched to its
// log lines.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
