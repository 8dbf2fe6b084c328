package auth_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/middleware/auth"
	"phiguard/pkg/requestcontext"
)

type stubValidator struct {
	claims *auth.Claims
	err    error
	seen   string
}

func (v *stubValidator) Validate(token string) (*auth.Claims, error) {
	v.seen = token
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *stubValidator
	logger    *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = &stubValidator{
		claims: &auth.Claims{UserID: "user-1", Email: "doc@clinic.example", Role: "doctor"},
	}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuthMiddlewareSuite) handler(captured *requestcontext.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ident, ok := requestcontext.IdentityFrom(r.Context()); ok {
			*captured = ident
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *AuthMiddlewareSuite) TestValidTokenInjectsIdentity() {
	var ident requestcontext.Identity
	mw := auth.RequireAuth(s.validator, s.logger)(s.handler(&ident))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	req.RemoteAddr = "192.0.2.7:51234"
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("token-123", s.validator.seen)
	s.Equal("user-1", ident.UserID)
	s.Equal("doctor", ident.Role)
}

func (s *AuthMiddlewareSuite) TestMissingHeader() {
	mw := auth.RequireAuth(s.validator, s.logger)(s.handler(&requestcontext.Identity{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	s.validator.err = dErrors.New(dErrors.CodeUnauthorized, "token expired")
	mw := auth.RequireAuth(s.validator, s.logger)(s.handler(&requestcontext.Identity{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *AuthMiddlewareSuite) TestValidatorInternalError() {
	s.validator.err = errors.New("keyset fetch failed")
	mw := auth.RequireAuth(s.validator, s.logger)(s.handler(&requestcontext.Identity{}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	// A non-domain error must not leak details and maps to 500.
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "keyset")
}

func (s *AuthMiddlewareSuite) TestClientIPFromForwardedFor() {
	var got string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.ClientIP(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := auth.RequireAuth(s.validator, s.logger)(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	s.Equal("203.0.113.9", got)
}

func (s *AuthMiddlewareSuite) TestRequestIDAssigned() {
	var got string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.RequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := auth.RequireAuth(s.validator, s.logger)(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	s.NotEmpty(got)
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.Run("allowed role passes", func() {
		mw := auth.RequireAuth(s.validator, s.logger)(auth.RequireRole("doctor", "owner")(inner))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token-123")
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("other role is forbidden", func() {
		mw := auth.RequireAuth(s.validator, s.logger)(auth.RequireRole("owner")(inner))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token-123")
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("unauthenticated is forbidden", func() {
		mw := auth.RequireRole("owner")(inner)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}
