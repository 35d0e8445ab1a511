package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/log"
)

// OIDCProvider wraps the discovered OIDC provider and its OAuth2 config
type OIDCProvider struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

var (
	oidcProvider     *OIDCProvider
	oidcProviderOnce sync.Once
	oidcProviderErr  error
)

// GetOIDCProvider returns a singleton OIDC provider instance with discovery
func GetOIDCProvider() (*OIDCProvider, error) {
	oidcProviderOnce.Do(func() {
		cfg := config.Get()

		if cfg.OAuthIssuerURL == "" {
			oidcProviderErr = fmt.Errorf("OAuth issuer URL not configured")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Discover OIDC provider configuration
		provider, err := oidc.NewProvider(ctx, cfg.OAuthIssuerURL)
		if err != nil {
			oidcProviderErr = fmt.Errorf("failed to discover OIDC provider: %w", err)
			log.Error().Err(err).Str("issuer", cfg.OAuthIssuerURL).Msg("OIDC provider discovery failed")
			return
		}

		// Create OAuth2 config with discovered endpoints
		oauth2Config := &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		}

		// Create ID token verifier
		verifier := provider.Verifier(&oidc.Config{
			ClientID: cfg.OAuthClientID,
		})

		oidcProvider = &OIDCProvider{
			provider:     provider,
			oauth2Config: oauth2Config,
			verifier:     verifier,
		}

		log.Info().
			Str("issuer", cfg.OAuthIssuerURL).
			Str("auth_endpoint", provider.Endpoint().AuthURL).
			Str("token_endpoint", provider.Endpoint().TokenURL).
			Msg("OIDC provider discovered and configured")
	})

	return oidcProvider, oidcProviderErr
}

// GetAuthCodeURL returns the authorization URL for the OAuth flow
func (p *OIDCProvider) GetAuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for tokens
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.oauth2Config.Exchange(ctx, code)
}

// VerifyIDToken verifies and parses an ID token
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	return p.verifier.Verify(ctx, rawIDToken)
}

// TokenSource creates a token source for token refresh
func (p *OIDCProvider) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return p.oauth2Config.TokenSource(ctx, token)
}
