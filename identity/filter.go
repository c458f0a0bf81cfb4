package identity

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/bpm-extensions/keycloak-identity/keycloak"
	"github.com/bpm-extensions/keycloak-identity/models"
)

// run executes a user query: it fetches the smallest candidate set the
// Keycloak API can deliver natively, maps the records, applies the residual
// filters as a conjunction and deduplicates by id in fetch order.
func (q UserQuery) run(ctx context.Context) ([]models.User, error) {
	p := q.provider

	if p.AuthorizationEnabled() {
		if userID, ok := AuthenticatedUser(ctx); ok {
			return q.runRestricted(ctx, userID)
		}
	}

	candidates, ok, err := q.fetchCandidates(ctx)
	if err != nil || !ok {
		return nil, err
	}

	var members map[string]struct{}
	if q.groupID != "" {
		members, err = p.groupMemberIDs(ctx, q.groupID)
		if err != nil {
			return nil, err
		}
	}

	var result []models.User
	seen := make(map[string]struct{})
	for _, user := range candidates {
		if _, dup := seen[user.ID]; dup {
			continue
		}
		if !q.matches(user, members) {
			continue
		}
		seen[user.ID] = struct{}{}
		result = append(result, user)
	}
	return result, nil
}

// runRestricted resolves a query under enabled authorization: the
// authenticated user sees their own record regardless of non-identity
// filters, and nothing else. An explicit id filter naming only other users
// excludes them unless configured otherwise.
func (q UserQuery) runRestricted(ctx context.Context, userID string) ([]models.User, error) {
	p := q.provider

	excluded := (q.id != "" && q.id != userID) ||
		(q.hasIDIn && !containsString(q.idIn, userID))
	if excluded && !p.cfg.SelfVisibilityOverridesIDFilters {
		return nil, nil
	}

	self, err := p.lookupUser(ctx, userID)
	if err != nil || self == nil {
		return nil, err
	}
	return []models.User{*self}, nil
}

// fetchCandidates picks the base fetch strategy. The second return value is
// false when a filter is already known to be unsatisfiable.
func (q UserQuery) fetchCandidates(ctx context.Context) ([]models.User, bool, error) {
	p := q.provider

	// Exact id filters resolve via direct lookups, avoiding a listing.
	if q.id != "" || q.hasIDIn {
		ids := q.idIn
		if q.id != "" {
			if q.hasIDIn && !containsString(q.idIn, q.id) {
				return nil, false, nil
			}
			ids = []string{q.id}
		}
		var users []models.User
		for _, id := range ids {
			user, err := p.lookupUser(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if user != nil {
				users = append(users, *user)
			}
		}
		return users, true, nil
	}

	// A membership filter anchors the query on the group's member listing.
	if q.groupID != "" {
		users, err := p.groupMembers(ctx, q.groupID)
		return users, true, err
	}

	// Full listing, with exact filters pushed to the remote side. A field
	// redirected to a custom attribute cannot be filtered natively, so its
	// filter stays residual.
	filter := keycloak.UserFilter{Username: q.username}
	if p.cfg.Attributes.Email == "" {
		filter.Email = q.email
	}
	if p.cfg.Attributes.FirstName == "" {
		filter.FirstName = q.firstName
	}
	if p.cfg.Attributes.LastName == "" {
		filter.LastName = q.lastName
	}
	filter.Exact = filter != (keycloak.UserFilter{})
	raw, err := p.client.FindUsers(ctx, filter, p.cfg.MaxResults)
	if err != nil {
		return nil, false, err
	}
	users := make([]models.User, 0, len(raw))
	for i := range raw {
		users = append(users, mapUser(&raw[i], p.cfg))
	}
	return users, true, nil
}

// matches applies the residual filters as a conjunction. Pushed filters are
// re-checked here; that keeps the conjunction invariant independent of the
// chosen fetch strategy.
func (q UserQuery) matches(user models.User, members map[string]struct{}) bool {
	if q.id != "" && user.ID != q.id {
		return false
	}
	if q.hasIDIn && !containsString(q.idIn, user.ID) {
		return false
	}
	if !matchEqual(q.username, user.Username) ||
		!matchEqual(q.email, user.Email) ||
		!matchEqual(q.firstName, user.FirstName) ||
		!matchEqual(q.lastName, user.LastName) {
		return false
	}
	if q.usernameLike != "" && !matchLike(q.usernameLike, user.Username) {
		return false
	}
	if q.emailLike != "" && !matchLike(q.emailLike, user.Email) {
		return false
	}
	if q.firstNameLike != "" && !matchLike(q.firstNameLike, user.FirstName) {
		return false
	}
	if q.lastNameLike != "" && !matchLike(q.lastNameLike, user.LastName) {
		return false
	}
	if q.groupID != "" {
		if _, ok := members[user.ID]; !ok {
			return false
		}
	}
	return true
}

// run executes a group query against the realm's groups and, when enabled,
// its realm roles.
func (q GroupQuery) run(ctx context.Context) ([]models.Group, error) {
	candidates, ok, err := q.fetchCandidates(ctx)
	if err != nil || !ok {
		return nil, err
	}

	var memberOf map[string]struct{}
	if q.member != "" {
		memberOf, err = q.provider.userGroupIDs(ctx, q.member)
		if err != nil {
			return nil, err
		}
	}

	var result []models.Group
	seen := make(map[string]struct{})
	for _, group := range candidates {
		if _, dup := seen[group.ID]; dup {
			continue
		}
		if !q.matches(group, memberOf) {
			continue
		}
		seen[group.ID] = struct{}{}
		result = append(result, group)
	}
	return result, nil
}

func (q GroupQuery) fetchCandidates(ctx context.Context) ([]models.Group, bool, error) {
	p := q.provider

	if q.id != "" || q.hasIDIn {
		ids := q.idIn
		if q.id != "" {
			if q.hasIDIn && !containsString(q.idIn, q.id) {
				return nil, false, nil
			}
			ids = []string{q.id}
		}
		var groups []models.Group
		for _, id := range ids {
			group, err := p.lookupGroup(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if group != nil {
				groups = append(groups, *group)
			}
		}
		return groups, true, nil
	}

	// A member filter anchors the query on the user's own group listing.
	if q.member != "" {
		groups, err := p.userGroups(ctx, q.member)
		return groups, true, err
	}

	raw, err := p.client.FindGroups(ctx, "", p.cfg.MaxResults)
	if err != nil {
		return nil, false, err
	}
	groups := make([]models.Group, 0, len(raw))
	for i := range raw {
		groups = append(groups, mapGroup(&raw[i], p.cfg))
	}
	if p.cfg.UseRolesAsGroups {
		roles, err := p.client.GetRealmRoles(ctx, p.cfg.MaxResults)
		if err != nil {
			return nil, false, err
		}
		for i := range roles {
			groups = append(groups, mapRole(&roles[i]))
		}
	}
	return groups, true, nil
}

func (q GroupQuery) matches(group models.Group, memberOf map[string]struct{}) bool {
	if q.id != "" && group.ID != q.id {
		return false
	}
	if q.hasIDIn && !containsString(q.idIn, group.ID) {
		return false
	}
	if !matchEqual(q.name, group.Name) || !matchEqual(q.typ, group.Type) {
		return false
	}
	if q.nameLike != "" && !matchLike(q.nameLike, group.Name) {
		return false
	}
	if q.member != "" {
		if _, ok := memberOf[group.ID]; !ok {
			return false
		}
	}
	return true
}

// groupMembers resolves a group or role id to its mapped member records. An
// unknown id yields an empty listing, never an error.
func (p *Provider) groupMembers(ctx context.Context, groupID string) ([]models.User, error) {
	raw, err := p.rawGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(raw))
	for i := range raw {
		users = append(users, mapUser(&raw[i], p.cfg))
	}
	return users, nil
}

func (p *Provider) rawGroupMembers(ctx context.Context, groupID string) ([]models.KeycloakUser, error) {
	group, err := p.client.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group != nil {
		return p.client.GetGroupMembers(ctx, group.ID, p.cfg.MaxResults)
	}
	if p.cfg.UseRolesAsGroups {
		role, err := p.client.GetRoleByName(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if role != nil {
			return p.client.GetRoleMembers(ctx, role.Name, p.cfg.MaxResults)
		}
	}
	log.Debug().Str("group", groupID).Msg("membership filter references unknown group")
	return nil, nil
}

// groupMemberIDs returns the engine ids of a group's members.
func (p *Provider) groupMemberIDs(ctx context.Context, groupID string) (map[string]struct{}, error) {
	members, err := p.groupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(members))
	for _, m := range members {
		ids[m.ID] = struct{}{}
	}
	return ids, nil
}

// userGroups lists the groups (and roles, when enabled) a user belongs to.
// An unknown user yields an empty listing.
func (p *Provider) userGroups(ctx context.Context, userID string) ([]models.Group, error) {
	raw, err := p.lookupRawUser(ctx, userID)
	if err != nil || raw == nil {
		return nil, err
	}
	kcGroups, err := p.client.GetUserGroups(ctx, raw.ID)
	if err != nil {
		return nil, err
	}
	groups := make([]models.Group, 0, len(kcGroups))
	for i := range kcGroups {
		groups = append(groups, mapGroup(&kcGroups[i], p.cfg))
	}
	if p.cfg.UseRolesAsGroups {
		roles, err := p.client.GetUserRealmRoles(ctx, raw.ID)
		if err != nil {
			return nil, err
		}
		for i := range roles {
			groups = append(groups, mapRole(&roles[i]))
		}
	}
	return groups, nil
}

func (p *Provider) userGroupIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	groups, err := p.userGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		ids[g.ID] = struct{}{}
	}
	return ids, nil
}
