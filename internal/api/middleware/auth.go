package middleware

import (
	"net/http"

	"github.com/notify-svc/scheduler/internal/session"
)

// RequireSession rejects the request with 401 unless a valid session
// cookie is present, and stores the authenticated username on the
// request context for downstream handlers (session.UsernameFromContext).
func RequireSession(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload, ok := sessions.Get(r)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing or expired session"}`))
				return
			}
			ctx := session.WithUsername(r.Context(), payload.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
