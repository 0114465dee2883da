package api

import (
	"context"
	"errors"
)

// userIDContextKey is the context key for the signed-in user.
type userIDContextKey struct{}

// ErrNoUserInContext indicates no user was found in the context.
var ErrNoUserInContext = errors.New("no user in context")

// WithUserID returns a new context carrying the signed-in user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the signed-in user's id.
// Returns ErrNoUserInContext if not present or empty.
func UserIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || id == "" {
		return "", ErrNoUserInContext
	}
	return id, nil
}

// MustUserIDFromContext extracts the user id or panics.
// Use only when IdentityMiddleware guarantees its presence.
func MustUserIDFromContext(ctx context.Context) string {
	id, err := UserIDFromContext(ctx)
	if err != nil {
		panic("user not in context: middleware misconfiguration")
	}
	return id
}
