package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// UserInfo identifies the Google account behind an exchanged token.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Config wraps the OAuth2 configuration for the Google consent flow
// and for binding stored tokens to API clients.
type Config struct {
	oauth *oauth2.Config
}

// NewConfig returns the OAuth2 configuration for all Google calls made
// by the facade.
func NewConfig(clientID, clientSecret, redirectURL string) *Config {
	return &Config{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     googleoauth.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
		},
	}
}

// AuthURL returns the consent URL for the given state nonce. Offline
// access is requested so the exchange yields a refresh token.
func (c *Config) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token bundle.
func (c *Config) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return token, nil
}

// UserInfo resolves the account identity for a freshly exchanged token.
// The returned ID is the identity the credential store is keyed by; the
// facade never generates user identities itself.
func (c *Config) UserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := c.oauth.Client(ctx, token)
	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}

	return &UserInfo{
		ID:    info.Id,
		Email: info.Email,
		Name:  info.Name,
	}, nil
}
