package identity

import (
	"github.com/bpm-extensions/keycloak-identity/internal/appconfig"
	"github.com/bpm-extensions/keycloak-identity/models"
)

// mapUser converts a Keycloak user representation into the engine's User
// value object. With useUsernameAsId enabled the engine-visible id is the
// username instead of the internal Keycloak id. Attribute mappings redirect
// individual fields to custom realm attributes; a missing attribute leaves
// the field absent so that wildcard filters against it never match.
func mapUser(raw *models.KeycloakUser, cfg *appconfig.KeycloakConfig) models.User {
	user := models.User{
		ID:        raw.ID,
		Username:  raw.Username,
		FirstName: raw.FirstName,
		LastName:  raw.LastName,
		Email:     raw.Email,
	}
	if cfg.UseUsernameAsID {
		user.ID = raw.Username
	}
	if name := cfg.Attributes.FirstName; name != "" {
		user.FirstName = firstAttribute(raw, name)
	}
	if name := cfg.Attributes.LastName; name != "" {
		user.LastName = firstAttribute(raw, name)
	}
	if name := cfg.Attributes.Email; name != "" {
		user.Email = firstAttribute(raw, name)
	}
	return user
}

func firstAttribute(raw *models.KeycloakUser, name string) string {
	values := raw.Attributes[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// mapGroup converts a Keycloak group representation into the engine's Group
// value object. Groups named in adminGroups are tagged as system groups.
func mapGroup(raw *models.KeycloakGroup, cfg *appconfig.KeycloakConfig) models.Group {
	group := models.Group{
		ID:   raw.ID,
		Name: raw.Name,
		Type: models.GroupTypeOrganization,
	}
	for _, admin := range cfg.AdminGroups {
		if admin == raw.ID || admin == raw.Name {
			group.Type = models.GroupTypeSystem
			break
		}
	}
	return group
}

// mapRole exposes a realm role as an engine group. Roles are addressed by
// name, which doubles as the engine-visible group id.
func mapRole(raw *models.KeycloakRole) models.Group {
	return models.Group{
		ID:   raw.Name,
		Name: raw.Name,
		Type: models.GroupTypeRole,
	}
}
