package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/strivehq/hookgate/internal/models"
)

var (
	// ErrInvalidCredential means no credential matched the presented key.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrCredentialExpired means the key matched a credential whose expiry
	// is in the past. Expiry takes precedence over the match.
	ErrCredentialExpired = errors.New("credential expired")
)

// Identity is the outcome of a successful authentication. CredentialID is
// the rate-limit key.
type Identity struct {
	UserID       string
	CredentialID string
}

type CredentialStore interface {
	GetCredentialByDigest(ctx context.Context, digest string) (*models.Credential, error)
	TouchCredential(ctx context.Context, id string, when time.Time) error
}

type Authenticator struct {
	store CredentialStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewAuthenticator(store CredentialStore, log zerolog.Logger) *Authenticator {
	return &Authenticator{store: store, log: log, now: time.Now}
}

// ParseBearer extracts the raw key from an Authorization header value.
// A missing or malformed header is not an error: it returns ok=false and
// the caller decides whether anonymous access is permitted. Storage is
// never queried for malformed headers.
func ParseBearer(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	key := strings.TrimPrefix(header, "Bearer ")
	if key == header || key == "" {
		return "", false
	}
	return key, true
}

// Authenticate resolves a raw API key to an identity. On success the
// credential's last-used timestamp is touched asynchronously so the hot
// path never waits on the write.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	cred, err := a.store.GetCredentialByDigest(ctx, HashKey(rawKey))
	if err != nil {
		return nil, fmt.Errorf("looking up credential: %w", err)
	}
	if cred == nil {
		return nil, ErrInvalidCredential
	}
	if cred.ExpiresAt != nil && cred.ExpiresAt.Before(a.now()) {
		return nil, ErrCredentialExpired
	}

	go a.touch(cred.ID)

	return &Identity{UserID: cred.UserID, CredentialID: cred.ID}, nil
}

func (a *Authenticator) touch(credentialID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.store.TouchCredential(ctx, credentialID, a.now().UTC()); err != nil {
		a.log.Warn().Err(err).Str("credential_id", credentialID).Msg("failed to update credential last-used timestamp")
	}
}
