package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bpm-extensions/keycloak-identity/api/middleware"
	"github.com/bpm-extensions/keycloak-identity/identity"
	"github.com/bpm-extensions/keycloak-identity/internal/authn"
	"github.com/bpm-extensions/keycloak-identity/models"
)

// Profile returns the identity record of the logged-in user. The sample app
// runs with useUsernameAsId enabled, so the session username doubles as the
// engine user id.
func Profile(provider *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context()).With().Str("handler", "Profile").Logger()

		claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
		if !ok {
			http.Error(w, "invalid claims", http.StatusUnauthorized)
			return
		}

		ctx := identity.WithAuthenticatedUser(r.Context(), claims.Username)
		user, err := provider.UserByID(ctx, claims.Username)
		if err != nil {
			logger.Error().Err(err).Msg("failed to fetch profile")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if user == nil {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, models.Response{Success: 1, Data: user})
	}
}

// ListUsers runs a user query assembled from URL parameters.
func ListUsers(provider *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context()).With().Str("handler", "ListUsers").Logger()

		query := provider.CreateUserQuery()
		params := r.URL.Query()
		if v := params.Get("id"); v != "" {
			query = query.UserID(v)
		}
		if v := params.Get("idIn"); v != "" {
			query = query.UserIDIn(strings.Split(v, ",")...)
		}
		if v := params.Get("username"); v != "" {
			query = query.Username(v)
		}
		if v := params.Get("usernameLike"); v != "" {
			query = query.UsernameLike(v)
		}
		if v := params.Get("email"); v != "" {
			query = query.Email(v)
		}
		if v := params.Get("emailLike"); v != "" {
			query = query.EmailLike(v)
		}
		if v := params.Get("firstName"); v != "" {
			query = query.FirstName(v)
		}
		if v := params.Get("firstNameLike"); v != "" {
			query = query.FirstNameLike(v)
		}
		if v := params.Get("lastName"); v != "" {
			query = query.LastName(v)
		}
		if v := params.Get("lastNameLike"); v != "" {
			query = query.LastNameLike(v)
		}
		if v := params.Get("group"); v != "" {
			query = query.MemberOfGroup(v)
		}
		if first, max, ok := pagination(params.Get("first"), params.Get("max")); ok {
			query = query.Page(first, max)
		}

		users, err := query.List(authenticatedContext(r))
		if err != nil {
			logger.Error().Err(err).Msg("user query failed")
			http.Error(w, err.Error(), queryErrorStatus(err))
			return
		}

		writeJSON(w, http.StatusOK, models.Response{Success: 1, Data: users})
	}
}

// ListGroups runs a group query assembled from URL parameters.
func ListGroups(provider *identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context()).With().Str("handler", "ListGroups").Logger()

		query := provider.CreateGroupQuery()
		params := r.URL.Query()
		if v := params.Get("id"); v != "" {
			query = query.GroupID(v)
		}
		if v := params.Get("idIn"); v != "" {
			query = query.GroupIDIn(strings.Split(v, ",")...)
		}
		if v := params.Get("name"); v != "" {
			query = query.GroupName(v)
		}
		if v := params.Get("nameLike"); v != "" {
			query = query.GroupNameLike(v)
		}
		if v := params.Get("type"); v != "" {
			query = query.GroupType(v)
		}
		if v := params.Get("member"); v != "" {
			query = query.GroupMember(v)
		}
		if first, max, ok := pagination(params.Get("first"), params.Get("max")); ok {
			query = query.Page(first, max)
		}

		groups, err := query.List(authenticatedContext(r))
		if err != nil {
			logger.Error().Err(err).Msg("group query failed")
			http.Error(w, err.Error(), queryErrorStatus(err))
			return
		}

		writeJSON(w, http.StatusOK, models.Response{Success: 1, Data: groups})
	}
}

// authenticatedContext carries the session user into the query context so
// that the provider's visibility rules apply.
func authenticatedContext(r *http.Request) context.Context {
	claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
	if !ok {
		return r.Context()
	}
	return identity.WithAuthenticatedUser(r.Context(), claims.Username)
}

func pagination(first, max string) (int, int, bool) {
	if first == "" && max == "" {
		return 0, 0, false
	}
	f, err := strconv.Atoi(first)
	if err != nil || f < 0 {
		f = 0
	}
	m, err := strconv.Atoi(max)
	if err != nil || m < 0 {
		m = -1
	}
	return f, m, true
}

func queryErrorStatus(err error) int {
	if errors.Is(err, identity.ErrNonUniqueResult) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, body models.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
