package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"civicflow/models"
	"civicflow/utils"
)

type contextKey int

const actorKey contextKey = iota

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor models.ActorContext) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by RequireActor or RequireSystemToken.
func ActorFromContext(ctx context.Context) (models.ActorContext, bool) {
	actor, ok := ctx.Value(actorKey).(models.ActorContext)
	return actor, ok
}

// AuthMiddleware resolves the caller from a bearer JWT
type AuthMiddleware struct {
	jwtSecret []byte
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: []byte(jwtSecret)}
}

// RequireActor validates the bearer token and stores the actor (user_id, role,
// department_id) in the request context.
func (m *AuthMiddleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Invalid authorization format. Expected: Bearer <token>")
			return
		}

		actor, err := utils.ParseActorJWT(parts[1], m.jwtSecret)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// respondWithError writes the same error envelope the handlers use
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	})
}
