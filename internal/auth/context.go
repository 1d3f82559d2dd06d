package auth

import (
	"context"

	"github.com/flowmasters/keygate/internal/storage"
)

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const authInfoKey ctxKey = iota

// Info is the per-request authentication context attached by the middleware.
// It is transient and never persisted.
type Info struct {
	KeyID       int64
	KeyName     string
	Permissions []string
	RateLimit   storage.RateLimit
	IsMaster    bool
}

// HasPermission reports whether the request may use the given capability.
// The master credential passes every check.
func (i *Info) HasPermission(permission string) bool {
	if i == nil {
		return false
	}
	if i.IsMaster {
		return true
	}
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// WithInfo attaches authentication info to the context.
func WithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

// InfoFromContext retrieves the authentication info from context.
// Returns nil if the request did not pass through the middleware.
func InfoFromContext(ctx context.Context) *Info {
	if v := ctx.Value(authInfoKey); v != nil {
		if info, ok := v.(*Info); ok {
			return info
		}
	}
	return nil
}
