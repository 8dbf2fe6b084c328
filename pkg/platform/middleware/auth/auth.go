// Package auth provides bearer-token middleware for the HTTP surface. The
// audit core itself never authorizes anything; this gate belongs to the
// transport layer calling it.
package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

// TokenValidator validates a bearer token into an identity's claims.
type TokenValidator interface {
	Validate(tokenString string) (*Claims, error)
}

// Claims is the validated identity the middleware places on the context.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	PatientID string
}

// RequireAuth validates the Authorization header and injects the caller
// identity, client IP and a correlation ID into the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := validator.Validate(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "token validation failed", "error", err)
				}
				httputil.WriteError(w, err)
				return
			}

			ctx := requestcontext.WithIdentity(r.Context(), requestcontext.Identity{
				UserID:    claims.UserID,
				Email:     claims.Email,
				Role:      claims.Role,
				PatientID: claims.PatientID,
			})
			ctx = requestcontext.WithClientIP(ctx, clientIP(r))
			ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates an endpoint to the given roles. Mount after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[requestcontext.Role(r.Context())] {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
