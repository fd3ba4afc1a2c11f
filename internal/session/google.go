package session

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleProvider signs users in with Google OAuth
type GoogleProvider struct {
	config     *oauth2.Config
	apiOptions []option.ClientOption
}

// NewGoogleProvider creates a new GoogleProvider instance
func NewGoogleProvider(clientID, clientSecret, redirectURL string) (*GoogleProvider, error) {
	if clientID == "" {
		return nil, fmt.Errorf("oauth client id is required")
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", googleoauth.UserinfoEmailScope, googleoauth.UserinfoProfileScope},
			Endpoint:     google.Endpoint,
		},
	}, nil
}

// AuthCodeURL returns the Google consent page URL
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the code for a token and fetches the user's details
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchanging code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(g.config.TokenSource(ctx, token))}, g.apiOptions...)
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("creating userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("fetching userinfo: %w", err)
	}

	return Identity{
		ID:    info.Id,
		Name:  info.Name,
		Photo: info.Picture,
		Email: info.Email,
	}, nil
}
