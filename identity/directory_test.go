package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/bpm-extensions/keycloak-identity/internal/appconfig"
	"github.com/bpm-extensions/keycloak-identity/keycloak"
	"github.com/bpm-extensions/keycloak-identity/models"
)

// fakeRealm serves the subset of the Keycloak admin REST API the provider
// talks to, backed by in-memory fixtures. Every test builds its own realm
// and provider; no state is shared between tests.
type fakeRealm struct {
	users        []models.KeycloakUser
	groups       []models.KeycloakGroup
	groupMembers map[string][]string
	roles        []models.KeycloakRole
	roleMembers  map[string][]string
	passwords    map[string]string
}

// newFixtureRealm returns the realm used throughout the query tests: three
// users, two groups and one realm role.
func newFixtureRealm() *fakeRealm {
	return &fakeRealm{
		users: []models.KeycloakUser{
			{ID: "kc-1", Username: "camunda", FirstName: "Admin", LastName: "Camunda", Email: "camunda@accso.de", Enabled: true},
			{ID: "kc-2", Username: "hans.mustermann", FirstName: "Hans", LastName: "Mustermann", Email: "hans.mustermann@accso.de", Enabled: true},
			{ID: "kc-3", Username: "hans.wurst", Enabled: true},
		},
		groups: []models.KeycloakGroup{
			{ID: "grp-admin", Name: "camunda-admin", Path: "/camunda-admin"},
			{ID: "grp-teamlead", Name: "teamlead", Path: "/teamlead"},
		},
		groupMembers: map[string][]string{
			"grp-admin":    {"kc-1"},
			"grp-teamlead": {"kc-2"},
		},
		roles: []models.KeycloakRole{
			{ID: "role-1", Name: "operators"},
		},
		roleMembers: map[string][]string{
			"operators": {"kc-1"},
		},
		passwords: map[string]string{
			"camunda": "camunda1!",
		},
	}
}

func (f *fakeRealm) userByID(id string) *models.KeycloakUser {
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i]
		}
	}
	return nil
}

func (f *fakeRealm) membersOf(memberIDs []string) []models.KeycloakUser {
	var members []models.KeycloakUser
	for _, id := range memberIDs {
		if u := f.userByID(id); u != nil {
			members = append(members, *u)
		}
	}
	return members
}

func (f *fakeRealm) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /realms/test/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") == "password" {
			username := r.PostForm.Get("username")
			if pw, ok := f.passwords[username]; !ok || pw != r.PostForm.Get("password") {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"access_token":"fake-admin-token"}`))
	})

	mux.HandleFunc("GET /admin/realms/test/users", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var matched []models.KeycloakUser
		for _, u := range f.users {
			if v := q.Get("username"); v != "" && u.Username != v {
				continue
			}
			if v := q.Get("email"); v != "" && u.Email != v {
				continue
			}
			if v := q.Get("firstName"); v != "" && u.FirstName != v {
				continue
			}
			if v := q.Get("lastName"); v != "" && u.LastName != v {
				continue
			}
			matched = append(matched, u)
		}
		writePage(w, r, matched)
	})

	mux.HandleFunc("GET /admin/realms/test/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if u := f.userByID(r.PathValue("id")); u != nil {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("GET /admin/realms/test/users/{id}/groups", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if f.userByID(id) == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var groups []models.KeycloakGroup
		for _, g := range f.groups {
			for _, member := range f.groupMembers[g.ID] {
				if member == id {
					groups = append(groups, g)
				}
			}
		}
		writePage(w, r, groups)
	})

	mux.HandleFunc("GET /admin/realms/test/users/{id}/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var roles []models.KeycloakRole
		for _, role := range f.roles {
			for _, member := range f.roleMembers[role.Name] {
				if member == id {
					roles = append(roles, role)
				}
			}
		}
		writePage(w, r, roles)
	})

	mux.HandleFunc("GET /admin/realms/test/groups", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, r, f.groups)
	})

	mux.HandleFunc("GET /admin/realms/test/groups/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, g := range f.groups {
			if g.ID == r.PathValue("id") {
				_ = json.NewEncoder(w).Encode(g)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("GET /admin/realms/test/groups/{id}/members", func(w http.ResponseWriter, r *http.Request) {
		members, ok := f.groupMembers[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writePage(w, r, f.membersOf(members))
	})

	mux.HandleFunc("GET /admin/realms/test/roles", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, r, f.roles)
	})

	mux.HandleFunc("GET /admin/realms/test/roles/{name}", func(w http.ResponseWriter, r *http.Request) {
		for _, role := range f.roles {
			if role.Name == r.PathValue("name") {
				_ = json.NewEncoder(w).Encode(role)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("GET /admin/realms/test/roles/{name}/users", func(w http.ResponseWriter, r *http.Request) {
		members, ok := f.roleMembers[r.PathValue("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writePage(w, r, f.membersOf(members))
	})

	return httptest.NewServer(mux)
}

// writePage applies the first/max pagination parameters and encodes the
// remaining slice.
func writePage[T any](w http.ResponseWriter, r *http.Request, list []T) {
	first, _ := strconv.Atoi(r.URL.Query().Get("first"))
	if first > 0 {
		if first >= len(list) {
			list = nil
		} else {
			list = list[first:]
		}
	}
	if maxStr := r.URL.Query().Get("max"); maxStr != "" {
		if max, err := strconv.Atoi(maxStr); err == nil && max < len(list) {
			list = list[:max]
		}
	}
	if list == nil {
		list = []T{}
	}
	_ = json.NewEncoder(w).Encode(list)
}

// newTestProvider spins up a fixture realm and binds a provider to it in
// alternate primary-key mode, mirroring the engine's default setup.
func newTestProvider(t *testing.T, mutate func(cfg *appconfig.KeycloakConfig)) *Provider {
	t.Helper()

	realm := newFixtureRealm()
	server := realm.server()
	t.Cleanup(server.Close)

	cfg := &appconfig.KeycloakConfig{
		URL:             server.URL,
		Realm:           "test",
		ClientID:        "identity-service",
		ClientSecret:    "secret",
		UseUsernameAsID: true,
		AdminGroups:     []string{"camunda-admin"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	client := keycloak.NewClient(cfg.URL, cfg.ClientID, cfg.ClientSecret, cfg.Realm)
	provider, err := NewProvider(cfg, client)
	if err != nil {
		t.Fatalf("failed to build provider: %v", err)
	}
	return provider
}
