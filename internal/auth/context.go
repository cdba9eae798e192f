package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// identityContextKey is the context key for the authenticated user ID.
const identityContextKey contextKey = "identity"

// ContextWithUserID returns a context carrying the authenticated user ID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityContextKey, userID)
}

// UserIDFromContext retrieves the authenticated user ID from the context.
// Returns an empty string if the request is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityContextKey).(string)
	return id
}

// MustUserIDFromContext retrieves the authenticated user ID or panics.
// Use only behind the auth middleware.
func MustUserIDFromContext(ctx context.Context) string {
	id := UserIDFromContext(ctx)
	if id == "" {
		panic("identity not found in context - ensure auth middleware is applied")
	}
	return id
}
