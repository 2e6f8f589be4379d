package auth

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"invoicedash/internal"
	"invoicedash/internal/config"
)

// Provider turns a login attempt into a signed-in user.
type Provider interface {
	// LoginURL is where the browser goes to authenticate. It must come back to
	// the callback with the same state.
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (internal.User, error)
}

// DemoProvider signs everyone in as one configured user.
type DemoProvider struct {
	User        internal.User
	CallbackURL string
}

func (p DemoProvider) LoginURL(state string) string {
	q := url.Values{"state": {state}, "code": {"demo"}}
	return p.CallbackURL + "?" + q.Encode()
}

func (p DemoProvider) Exchange(_ context.Context, _ string) (internal.User, error) {
	return p.User, nil
}

// AzureADProvider runs the authorization code flow against Microsoft Entra ID
// and loads the profile from Graph.
type AzureADProvider struct {
	OAuth *oauth2.Config
	Graph *GraphClient
}

var azureScopes = []string{"openid", "profile", "email", "User.Read"}

func NewAzureADProvider(cfg config.Config) (*AzureADProvider, error) {
	for name, value := range map[string]string{
		"AZURE_TENANT_ID":     cfg.AzureTenantID,
		"AZURE_CLIENT_ID":     cfg.AzureClientID,
		"AZURE_CLIENT_SECRET": cfg.AzureClientSecret,
	} {
		if err := cfg.Require(name, value); err != nil {
			return nil, err
		}
	}
	return &AzureADProvider{
		OAuth: &oauth2.Config{
			ClientID:     cfg.AzureClientID,
			ClientSecret: cfg.AzureClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(cfg.AzureTenantID),
			RedirectURL:  cfg.AzureRedirectURL,
			Scopes:       azureScopes,
		},
		Graph: NewGraphClient(cfg.GraphBaseURL),
	}, nil
}

func (p *AzureADProvider) LoginURL(state string) string {
	return p.OAuth.AuthCodeURL(state)
}

func (p *AzureADProvider) Exchange(ctx context.Context, code string) (internal.User, error) {
	tok, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return internal.User{}, fmt.Errorf("exchange code: %w", err)
	}
	return p.Graph.Me(ctx, tok.AccessToken)
}

// NewProvider picks the provider for AUTH_MODE.
func NewProvider(cfg config.Config) (Provider, error) {
	switch cfg.AuthMode {
	case "demo", "":
		return DemoProvider{
			User: internal.User{
				ID:    "demo",
				Name:  cfg.DemoUserName,
				Email: cfg.DemoUserEmail,
			},
			CallbackURL: "/auth/callback",
		}, nil
	case "azuread":
		return NewAzureADProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.AuthMode)
	}
}
