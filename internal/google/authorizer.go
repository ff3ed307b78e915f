package google

import (
	"context"
	"errors"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailfold/mailfold/internal/store"
)

// ErrCredentialNotFound is returned when no credential is stored for
// the requested user identity.
var ErrCredentialNotFound = errors.New("credentials not found")

// Authorizer builds Gmail services bound to stored per-user credentials.
//
// Services are not cached: every logical operation re-authorizes, so a
// credential replaced by re-authentication takes effect immediately.
// Building a service performs no network I/O; the first API call does.
type Authorizer struct {
	cfg   *Config
	store *store.Store
}

// NewAuthorizer creates an Authorizer over the given credential store.
func NewAuthorizer(cfg *Config, st *store.Store) *Authorizer {
	return &Authorizer{cfg: cfg, store: st}
}

// Service returns a Gmail service authorized as the given user.
// It fails with ErrCredentialNotFound when the store has no credential
// for that identity; it never falls back to a default client.
func (a *Authorizer) Service(ctx context.Context, userID string) (*gmail.Service, error) {
	token, ok := a.store.Get(userID)
	if !ok {
		return nil, fmt.Errorf("%w for user %s", ErrCredentialNotFound, userID)
	}

	client := a.cfg.oauth.Client(ctx, token)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

// HasCredential reports whether a credential is stored for the user.
func (a *Authorizer) HasCredential(userID string) bool {
	_, ok := a.store.Get(userID)
	return ok
}
