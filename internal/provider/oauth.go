package provider

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// DefaultScopes are the mailbox permissions requested when linking an account.
var DefaultScopes = []string{"Mail.Read", "Mail.ReadWrite", "Mail.Send", "Mail.Drafts", "Mail.All"}

// OAuthConfig holds the client registration used for linking.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	ServiceType  string
}

// OAuth runs the authorization-code flow that links a mailbox.
type OAuth struct {
	config      *oauth2.Config
	serviceType string
}

func NewOAuth(cfg OAuthConfig) *OAuth {
	serviceType := cfg.ServiceType
	if serviceType == "" {
		serviceType = "Google"
	}

	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      DefaultScopes,
		},
		serviceType: serviceType,
	}
}

// AuthURL returns the consent page URL. state is echoed back to the callback.
func (o *OAuth) AuthURL(state string) string {
	return o.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("serviceType", o.serviceType),
		oauth2.AccessTypeOffline,
	)
}

// Exchange trades an authorization code for the account's access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("authorization code is required")
	}

	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return token.AccessToken, nil
}
