package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strivehq/hookgate/internal/api"
	"github.com/strivehq/hookgate/internal/auth"
)

type fakeAuthenticator struct {
	identity *auth.Identity
	err      error
	calls    int
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, _ string) (*auth.Identity, error) {
	f.calls++
	return f.identity, f.err
}

type fakeLimiter struct {
	allowed bool
	err     error
	lastKey string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.lastKey = key
	return f.allowed, f.err
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := api.IdentityFromContext(r.Context())
		if identity == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(identity.UserID))
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing header is rejected without touching the authenticator", func(t *testing.T) {
		authn := &fakeAuthenticator{}
		handler := api.AuthMiddleware(authn)(echoIdentity())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, authn.calls)
	})

	t.Run("malformed scheme is rejected without touching the authenticator", func(t *testing.T) {
		authn := &fakeAuthenticator{}
		handler := api.AuthMiddleware(authn)(echoIdentity())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, authn.calls)
	})

	t.Run("invalid key yields 401", func(t *testing.T) {
		authn := &fakeAuthenticator{err: auth.ErrInvalidCredential}
		handler := api.AuthMiddleware(authn)(echoIdentity())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sk_bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid api key")
	})

	t.Run("expired key yields a distinct 401", func(t *testing.T) {
		authn := &fakeAuthenticator{err: auth.ErrCredentialExpired}
		handler := api.AuthMiddleware(authn)(echoIdentity())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sk_stale")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "expired")
	})

	t.Run("lookup fault yields 500", func(t *testing.T) {
		authn := &fakeAuthenticator{err: errors.New("db down")}
		handler := api.AuthMiddleware(authn)(echoIdentity())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sk_any")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("valid key runs the handler with the identity in context", func(t *testing.T) {
		authn := &fakeAuthenticator{identity: &auth.Identity{UserID: "user_1", CredentialID: "key_1"}}
		handler := api.AuthMiddleware(authn)(echoIdentity())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sk_good")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user_1", rec.Body.String())
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	withIdentity := func(limiter *fakeLimiter) http.Handler {
		authn := &fakeAuthenticator{identity: &auth.Identity{UserID: "user_1", CredentialID: "key_1"}}
		return api.AuthMiddleware(authn)(api.RateLimitMiddleware(limiter)(echoIdentity()))
	}

	authedRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sk_good")
		return req
	}

	t.Run("allowed requests pass through keyed by credential", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: true}
		rec := httptest.NewRecorder()
		withIdentity(limiter).ServeHTTP(rec, authedRequest())

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "key_1", limiter.lastKey)
	})

	t.Run("denied requests get 429", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: false}
		rec := httptest.NewRecorder()
		withIdentity(limiter).ServeHTTP(rec, authedRequest())

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "rate limit exceeded")
	})

	t.Run("limiter failure fails closed with 500", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis unreachable")}
		rec := httptest.NewRecorder()
		withIdentity(limiter).ServeHTTP(rec, authedRequest())

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
