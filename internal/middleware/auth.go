package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/researchhub/identity/internal/auth"
)

// TokenVerifier validates an access token and returns the subject user ID.
// *auth.TokenIssuer satisfies it.
type TokenVerifier interface {
	Validate(tokenString string) (string, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
}

// Auth returns a middleware that authenticates requests with a bearer
// access token and injects the user ID into the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				logAuthFailure(cfg.Logger, r, "missing_token")
				writeAuthError(w)
				return
			}

			userID, err := cfg.Verifier.Validate(token)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, auth.ErrTokenExpired) {
					reason = "expired_token"
				}
				logAuthFailure(cfg.Logger, r, reason)
				writeAuthError(w)
				return
			}

			ctx := auth.ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// extractBearerToken pulls the access token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing access token"}}`))
}
