// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Values are set by middleware and consumed by services. Keeping this package
// free of net/http dependencies means services can import only what they need
// without pulling in HTTP-related code.
//
// Usage in services (read values):
//
//	userID := requestcontext.UserID(ctx)
//	role := requestcontext.Role(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithIdentity(ctx, ident)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import "context"

// Identity is the already-authenticated caller identity extracted from a
// bearer token. PatientID is the caller's own linked patient record, set only
// for patient-role users.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	PatientID string
}

type (
	identityKey  struct{}
	clientIPKey  struct{}
	requestIDKey struct{}
)

// WithIdentity injects the authenticated identity into the context.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// IdentityFrom retrieves the authenticated identity, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(Identity)
	return ident, ok
}

// UserID retrieves the authenticated user ID, or "" if unauthenticated.
func UserID(ctx context.Context) string {
	ident, _ := IdentityFrom(ctx)
	return ident.UserID
}

// Role retrieves the authenticated role, or "" if unauthenticated.
func Role(ctx context.Context) string {
	ident, _ := IdentityFrom(ctx)
	return ident.Role
}

// WithClientIP injects the caller network address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP retrieves the caller network address, or "".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID retrieves the correlation ID, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
