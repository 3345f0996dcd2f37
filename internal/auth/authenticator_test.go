package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strivehq/hookgate/internal/auth"
	"github.com/strivehq/hookgate/internal/models"
)

type fakeCredentialStore struct {
	mu       sync.Mutex
	byDigest map[string]*models.Credential
	getErr   error
	touched  chan string
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		byDigest: make(map[string]*models.Credential),
		touched:  make(chan string, 8),
	}
}

func (f *fakeCredentialStore) GetCredentialByDigest(_ context.Context, digest string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byDigest[digest], nil
}

func (f *fakeCredentialStore) TouchCredential(_ context.Context, id string, _ time.Time) error {
	f.touched <- id
	return nil
}

func (f *fakeCredentialStore) add(cred *models.Credential, rawKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred.KeyDigest = auth.HashKey(rawKey)
	f.byDigest[cred.KeyDigest] = cred
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown key fails with invalid credential", func(t *testing.T) {
		store := newFakeCredentialStore()
		authn := auth.NewAuthenticator(store, zerolog.Nop())

		_, err := authn.Authenticate(ctx, "sk_nobody")
		require.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("expired key fails with expired, not invalid", func(t *testing.T) {
		store := newFakeCredentialStore()
		expired := time.Now().Add(-1 * time.Hour)
		store.add(&models.Credential{
			ID:        "key_expired",
			UserID:    "user_1",
			ExpiresAt: &expired,
		}, "sk_stale")
		authn := auth.NewAuthenticator(store, zerolog.Nop())

		_, err := authn.Authenticate(ctx, "sk_stale")
		require.ErrorIs(t, err, auth.ErrCredentialExpired)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("valid key returns identity and touches last-used", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.add(&models.Credential{ID: "key_1", UserID: "user_1"}, "sk_good")
		authn := auth.NewAuthenticator(store, zerolog.Nop())

		identity, err := authn.Authenticate(ctx, "sk_good")
		require.NoError(t, err)
		assert.Equal(t, "user_1", identity.UserID)
		assert.Equal(t, "key_1", identity.CredentialID)

		select {
		case id := <-store.touched:
			assert.Equal(t, "key_1", id)
		case <-time.After(2 * time.Second):
			t.Fatal("last-used touch never happened")
		}
	})

	t.Run("future expiry is still valid", func(t *testing.T) {
		store := newFakeCredentialStore()
		future := time.Now().Add(24 * time.Hour)
		store.add(&models.Credential{ID: "key_2", UserID: "user_2", ExpiresAt: &future}, "sk_fresh")
		authn := auth.NewAuthenticator(store, zerolog.Nop())

		identity, err := authn.Authenticate(ctx, "sk_fresh")
		require.NoError(t, err)
		assert.Equal(t, "user_2", identity.UserID)
	})

	t.Run("storage error is neither invalid nor expired", func(t *testing.T) {
		store := newFakeCredentialStore()
		store.getErr = errors.New("connection refused")
		authn := auth.NewAuthenticator(store, zerolog.Nop())

		_, err := authn.Authenticate(ctx, "sk_good")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredential)
		assert.NotErrorIs(t, err, auth.ErrCredentialExpired)
	})
}

func TestParseBearer(t *testing.T) {
	t.Run("valid bearer header", func(t *testing.T) {
		key, ok := auth.ParseBearer("Bearer sk_abc123")
		require.True(t, ok)
		assert.Equal(t, "sk_abc123", key)
	})

	t.Run("missing header is anonymous", func(t *testing.T) {
		_, ok := auth.ParseBearer("")
		assert.False(t, ok)
	})

	t.Run("wrong scheme is anonymous", func(t *testing.T) {
		_, ok := auth.ParseBearer("Token sk_abc123")
		assert.False(t, ok)
	})

	t.Run("bearer with empty token is anonymous", func(t *testing.T) {
		_, ok := auth.ParseBearer("Bearer ")
		assert.False(t, ok)
	})

	t.Run("bare key without scheme is anonymous", func(t *testing.T) {
		_, ok := auth.ParseBearer("sk_abc123")
		assert.False(t, ok)
	})
}
