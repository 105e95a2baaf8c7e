package auth

import (
	"context"

	"hrportal.org/internal/obs"
)

type userContextKey struct{}
type tokenContextKey struct{}

// ContextWithUser attaches the authenticated user to the context. The user id
// is also exposed to the logger.
func ContextWithUser(ctx context.Context, u User) context.Context {
	ctx = obs.WithUserID(ctx, u.ID)
	return context.WithValue(ctx, userContextKey{}, &u)
}

// UserFromContext returns the user set by the session middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(*User)
	if !ok || v == nil || v.ID == "" {
		return User{}, false
	}
	return *v, true
}

// ContextWithToken stores the current access token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the access token if one was attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
