package identity

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bpm-extensions/keycloak-identity/internal/appconfig"
	"github.com/bpm-extensions/keycloak-identity/keycloak"
	"github.com/bpm-extensions/keycloak-identity/models"
)

// Provider implements the engine's identity-provider capability set on top
// of a Keycloak realm: user and group queries, password checks and group
// membership lookups. It holds no mutable state beyond the authorization
// flag; every query re-fetches from the realm.
type Provider struct {
	cfg    *appconfig.KeycloakConfig
	client *keycloak.Client
	authz  atomic.Bool
	log    zerolog.Logger
}

// NewProvider validates the realm configuration and wires the provider to
// the given admin client.
func NewProvider(cfg *appconfig.KeycloakConfig, client *keycloak.Client) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("realm", cfg.Realm).Logger(),
	}, nil
}

// SetAuthorizationEnabled toggles the engine's authorization checks. The
// host engine owns this flag; the provider only reads it at query time.
func (p *Provider) SetAuthorizationEnabled(enabled bool) {
	p.authz.Store(enabled)
}

// AuthorizationEnabled reports whether queries run restricted to the
// authenticated user.
func (p *Provider) AuthorizationEnabled() bool {
	return p.authz.Load()
}

// CreateUserQuery returns a fresh user query specification bound to this
// realm.
func (p *Provider) CreateUserQuery() UserQuery {
	return UserQuery{provider: p}
}

// CreateGroupQuery returns a fresh group query specification bound to this
// realm.
func (p *Provider) CreateGroupQuery() GroupQuery {
	return GroupQuery{provider: p}
}

// UserByID fetches a single user by engine id; a missing user is a nil
// record, not an error.
func (p *Provider) UserByID(ctx context.Context, userID string) (*models.User, error) {
	return p.lookupUser(ctx, userID)
}

// CheckPassword validates a user's credentials against the realm. Unknown
// users and empty passwords report false without an error.
func (p *Provider) CheckPassword(ctx context.Context, userID, password string) (bool, error) {
	if userID == "" || password == "" {
		return false, nil
	}
	username := userID
	if !p.cfg.UseUsernameAsID {
		raw, err := p.lookupRawUser(ctx, userID)
		if err != nil {
			return false, err
		}
		if raw == nil {
			return false, nil
		}
		username = raw.Username
	}
	ok, err := p.client.CheckPassword(ctx, username, password)
	if err != nil {
		return false, err
	}
	if !ok {
		p.log.Debug().Str("user", userID).Msg("password check failed")
	}
	return ok, nil
}

// IsMemberOfGroup reports whether the user belongs to the group. Unknown
// users or groups report false.
func (p *Provider) IsMemberOfGroup(ctx context.Context, userID, groupID string) (bool, error) {
	memberOf, err := p.userGroupIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := memberOf[groupID]
	return ok, nil
}

// lookupRawUser resolves an engine user id to the Keycloak representation,
// honouring the alternate primary-key mode.
func (p *Provider) lookupRawUser(ctx context.Context, userID string) (*models.KeycloakUser, error) {
	if p.cfg.UseUsernameAsID {
		return p.client.GetUserByUsername(ctx, userID)
	}
	return p.client.GetUserByID(ctx, userID)
}

func (p *Provider) lookupUser(ctx context.Context, userID string) (*models.User, error) {
	raw, err := p.lookupRawUser(ctx, userID)
	if err != nil || raw == nil {
		return nil, err
	}
	user := mapUser(raw, p.cfg)
	return &user, nil
}

// lookupGroup resolves an engine group id to a mapped group, trying the
// group endpoint first and then, when enabled, realm roles by name.
func (p *Provider) lookupGroup(ctx context.Context, groupID string) (*models.Group, error) {
	raw, err := p.client.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		group := mapGroup(raw, p.cfg)
		return &group, nil
	}
	if p.cfg.UseRolesAsGroups {
		role, err := p.client.GetRoleByName(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if role != nil {
			group := mapRole(role)
			return &group, nil
		}
	}
	return nil, nil
}
