package middleware

import (
	"crypto/subtle"
	"net/http"

	"civicflow/models"
)

// SystemTokenHeader carries the shared secret of automated callers.
const SystemTokenHeader = "X-System-Token"

// RequireSystemToken admits only callers presenting the configured system token and
// runs them as the SYSTEM actor. An empty token disables the system endpoints.
func RequireSystemToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondWithError(w, http.StatusForbidden, "Forbidden", "System access not configured")
				return
			}
			presented := r.Header.Get(SystemTokenHeader)
			if presented == "" {
				respondWithError(w, http.StatusForbidden, "Forbidden", SystemTokenHeader+" header required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				respondWithError(w, http.StatusForbidden, "Forbidden", "Invalid system token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), models.SystemActor())))
		})
	}
}
