// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Values are set by transport middleware and consumed by services. Keeping the
// package free of net/http lets services import only what they need.
//
// Usage in services (read values):
//
//	userID := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithIdentity(ctx, identity)
package requestcontext

import (
	"context"
	"time"

	id "naturewatch/pkg/domain"
)

// Identity is the read-only view of the caller supplied by the external
// session provider. The core never mutates identity records; it only reads
// them and writes to the credibility ledger.
type Identity struct {
	UserID           id.UserID
	ExpertiseLevel   string
	CredibilityScore int
}

type (
	identityKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// CallerIdentity retrieves the authenticated identity from the context.
// The zero Identity is returned when no middleware ran.
func CallerIdentity(ctx context.Context) Identity {
	if ident, ok := ctx.Value(identityKey{}).(Identity); ok {
		return ident
	}
	return Identity{}
}

// WithIdentity injects the caller identity into the context.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// UserID retrieves the authenticated user ID from the context.
// Returns the zero value (nil UUID) if not set.
func UserID(ctx context.Context) id.UserID {
	return CallerIdentity(ctx).UserID
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need consistent time within a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
