package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strivehq/hookgate/internal/api"
	"github.com/strivehq/hookgate/internal/auth"
	"github.com/strivehq/hookgate/internal/config"
	"github.com/strivehq/hookgate/internal/models"
	"github.com/strivehq/hookgate/internal/storage"
)

// newTestServer wires the real router and SQLite storage behind a fake
// authenticator that always resolves to user_1.
func newTestServer(t *testing.T) (http.Handler, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "hookgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	authn := &fakeAuthenticator{identity: &auth.Identity{UserID: "user_1", CredentialID: "key_1"}}
	limiter := &fakeLimiter{allowed: true}
	server := api.NewServer(config.ServerConfig{}, store, authn, limiter, &fakeDispatcher{}, zerolog.Nop())
	return server.Handler(), store
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer sk_test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubscriptionHandlers(t *testing.T) {
	t.Run("create validates the url", func(t *testing.T) {
		handler, _ := newTestServer(t)

		rec := doRequest(t, handler, http.MethodPost, "/api/v1/subscriptions",
			`{"url":"not-a-url","event_types":["goal.completed"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, handler, http.MethodPost, "/api/v1/subscriptions",
			`{"url":"https://example.com/hooks"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "event_types is required")
	})

	t.Run("create returns the signing secret exactly once", func(t *testing.T) {
		handler, _ := newTestServer(t)

		rec := doRequest(t, handler, http.MethodPost, "/api/v1/subscriptions",
			`{"url":"https://example.com/hooks","event_types":["goal.completed"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created models.Subscription
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.True(t, strings.HasPrefix(created.Secret, "whsec_"))
		assert.Equal(t, models.SubscriptionActive, created.Status)

		rec = doRequest(t, handler, http.MethodGet, "/api/v1/subscriptions/"+created.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.Subscription
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Empty(t, got.Secret, "reads never expose the secret")
	})

	t.Run("another user's subscription reads as not found", func(t *testing.T) {
		handler, store := newTestServer(t)

		now := time.Now().UTC()
		other := &models.Subscription{
			ID:         models.NewID("sub"),
			UserID:     "user_2",
			URL:        "https://example.com/hooks",
			EventTypes: []string{"goal.completed"},
			Secret:     models.NewSigningSecret(),
			Status:     models.SubscriptionActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, store.CreateSubscription(context.Background(), other))

		rec := doRequest(t, handler, http.MethodGet, "/api/v1/subscriptions/"+other.ID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("enable clears an auto-disabled subscription", func(t *testing.T) {
		handler, store := newTestServer(t)
		ctx := context.Background()

		now := time.Now().UTC()
		sub := &models.Subscription{
			ID:         models.NewID("sub"),
			UserID:     "user_1",
			URL:        "https://example.com/hooks",
			EventTypes: []string{"goal.completed"},
			Secret:     models.NewSigningSecret(),
			Status:     models.SubscriptionActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, store.CreateSubscription(ctx, sub))
		for i := 0; i < models.DisableThreshold; i++ {
			require.NoError(t, store.RecordDeliveryFailure(ctx, sub.ID, time.Now().UTC()))
		}

		rec := doRequest(t, handler, http.MethodPatch, "/api/v1/subscriptions/"+sub.ID+"/enable", "")
		require.Equal(t, http.StatusOK, rec.Code)

		got, err := store.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionActive, got.Status)
		assert.Equal(t, 0, got.FailureCount)
	})

	t.Run("list returns only the caller's subscriptions", func(t *testing.T) {
		handler, store := newTestServer(t)

		rec := doRequest(t, handler, http.MethodPost, "/api/v1/subscriptions",
			`{"url":"https://example.com/hooks","event_types":["goal.completed"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		now := time.Now().UTC()
		require.NoError(t, store.CreateSubscription(context.Background(), &models.Subscription{
			ID: models.NewID("sub"), UserID: "user_2", URL: "https://example.com/other",
			EventTypes: []string{"goal.completed"}, Secret: models.NewSigningSecret(),
			Status: models.SubscriptionActive, CreatedAt: now, UpdatedAt: now,
		}))

		rec = doRequest(t, handler, http.MethodGet, "/api/v1/subscriptions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var subs []models.Subscription
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
		require.Len(t, subs, 1)
		assert.Equal(t, "user_1", subs[0].UserID)
	})

	t.Run("delete removes and a re-read is not found", func(t *testing.T) {
		handler, _ := newTestServer(t)

		rec := doRequest(t, handler, http.MethodPost, "/api/v1/subscriptions",
			`{"url":"https://example.com/hooks","event_types":["goal.completed"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created models.Subscription
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = doRequest(t, handler, http.MethodDelete, "/api/v1/subscriptions/"+created.ID, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, handler, http.MethodGet, "/api/v1/subscriptions/"+created.ID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
