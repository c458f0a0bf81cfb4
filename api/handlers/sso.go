package handlers

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/bpm-extensions/keycloak-identity/internal/appconfig"
)

// SSO bundles the OpenID Connect collaborators of the login flow: the
// discovered Keycloak provider, the ID token verifier and the OAuth2
// authorization-code configuration.
type SSO struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	session      appconfig.SessionConfig
}

// NewSSO discovers the realm's OpenID Connect endpoints and prepares the
// authorization-code flow.
func NewSSO(ctx context.Context, cfg *appconfig.Config) (*SSO, error) {
	issuer := fmt.Sprintf("%s/realms/%s", cfg.Keycloak.URL, cfg.Keycloak.Realm)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.SSO.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &SSO{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.SSO.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.SSO.RedirectURL,
			Scopes:       scopes,
		},
		session: cfg.Session,
	}, nil
}
