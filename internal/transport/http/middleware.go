package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"portal-auth/internal/domain"
	obsmw "portal-auth/internal/observability/middleware"
	"portal-auth/internal/service"
)

type identityKey struct{}

type identity struct {
	UserID domain.UserID
	Role   string
}

// requireAuth gates a route on a valid bearer access token and stores the
// caller's identity in the request context.
func requireAuth(tokens service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				writeError(w, http.StatusUnauthorized, "TOKEN_REQUIRED", "missing bearer token")
				return
			}
			tokenStr := strings.TrimSpace(raw[len("Bearer "):])

			userID, role, err := tokens.VerifyAccessToken(tokenStr)
			if err != nil {
				slog.Warn("rejected access token",
					"error", err,
					"request_id", obsmw.RequestIDFromContext(r.Context()),
				)
				writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFrom(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}
