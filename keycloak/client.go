package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bpm-extensions/keycloak-identity/models"
)

// pageSize is the page length used when walking paginated admin listings.
const pageSize = 100

// errNotFound marks a 404 from the admin API. Callers translate it into an
// empty result; it never leaves this package.
var errNotFound = errors.New("keycloak resource not found")

// Client is a client for the Keycloak admin REST API of a single realm. It
// authenticates with the client_credentials grant and transparently
// refreshes its access token once when a request comes back unauthorized.
//
// A Client is safe for concurrent use. The access token is the only shared
// mutable state; refreshing it is mutex-guarded so that simultaneous 401s
// trigger a single token round-trip.
type Client struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a new admin REST client for the given realm.
func NewClient(baseURL, clientID, clientSecret, realm string) *Client {
	return &Client{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Realm:        realm,
		HTTPClient:   &http.Client{},
	}
}

// Authenticate obtains a fresh admin access token via client_credentials.
// Calling it is optional; requests fetch a token lazily when none is held.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// bearer returns the current token, fetching one if none is held yet.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		if err := c.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// refresh replaces the token the caller found to be stale. When another
// caller already refreshed in the meantime, the newer token is reused
// instead of hitting the token endpoint again.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.token != stale {
		return c.token, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

func (c *Client) refreshLocked(ctx context.Context) error {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.ClientID)
	data.Set("client_secret", c.ClientSecret)

	status, body, err := c.postToken(ctx, data)
	if err != nil {
		return &ServiceError{Op: "token request", Err: err}
	}
	if status != http.StatusOK {
		return &AuthError{Status: status, Description: tokenErrorDescription(body)}
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return &ServiceError{Op: "token request", Err: fmt.Errorf("failed to decode token response: %w", err)}
	}

	c.token = tokenResponse.AccessToken
	return nil
}

// CheckPassword validates a user's credentials with the resource owner
// password grant. A rejected grant reports false without an error; the
// password is never logged.
func (c *Client) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", c.ClientID)
	data.Set("client_secret", c.ClientSecret)
	data.Set("username", username)
	data.Set("password", password)

	status, body, err := c.postToken(ctx, data)
	if err != nil {
		return false, &ServiceError{Op: "password check", Err: err}
	}
	switch {
	case status == http.StatusOK:
		return true, nil
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		log.Debug().Str("username", username).Msg("password check rejected")
		return false, nil
	case status >= 500:
		return false, &ServiceError{Op: "password check", Status: status}
	default:
		return false, &AuthError{Status: status, Description: tokenErrorDescription(body)}
	}
}

func (c *Client) postToken(ctx context.Context, data url.Values) (int, []byte, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.BaseURL, c.Realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func tokenErrorDescription(body []byte) string {
	var ke struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &ke); err != nil {
		return ""
	}
	if ke.ErrorDescription != "" {
		return ke.ErrorDescription
	}
	return ke.Error
}

// UserFilter holds the query parameters the Keycloak user listing supports
// natively. Zero values are omitted from the request.
type UserFilter struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Exact     bool
}

func (f UserFilter) values() url.Values {
	q := url.Values{}
	if f.Username != "" {
		q.Set("username", f.Username)
	}
	if f.Email != "" {
		q.Set("email", f.Email)
	}
	if f.FirstName != "" {
		q.Set("firstName", f.FirstName)
	}
	if f.LastName != "" {
		q.Set("lastName", f.LastName)
	}
	if f.Exact {
		q.Set("exact", "true")
	}
	return q
}

// FindUsers lists realm users matching the given native filter, walking the
// paginated listing up to max records.
func (c *Client) FindUsers(ctx context.Context, filter UserFilter, max int) ([]models.KeycloakUser, error) {
	var users []models.KeycloakUser
	err := c.paginate(ctx, "/users", filter.values(), max, func(ctx context.Context, path string, q url.Values) (int, error) {
		var page []models.KeycloakUser
		if err := c.get(ctx, path, q, &page); err != nil {
			return 0, err
		}
		users = append(users, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}
	if max > 0 && len(users) > max {
		users = users[:max]
	}
	return users, nil
}

// GetUserByID fetches a single user by its internal Keycloak id. A missing
// user is an empty result, not an error.
func (c *Client) GetUserByID(ctx context.Context, id string) (*models.KeycloakUser, error) {
	var user models.KeycloakUser
	err := c.get(ctx, "/users/"+url.PathEscape(id), nil, &user)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername fetches the user with exactly the given username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*models.KeycloakUser, error) {
	users, err := c.FindUsers(ctx, UserFilter{Username: username, Exact: true}, pageSize)
	if err != nil {
		return nil, err
	}
	// The exact parameter is not honoured by every Keycloak version, so the
	// username is re-checked here.
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

// FindGroups lists realm groups, optionally narrowed by a search fragment.
func (c *Client) FindGroups(ctx context.Context, search string, max int) ([]models.KeycloakGroup, error) {
	base := url.Values{}
	if search != "" {
		base.Set("search", search)
	}
	var groups []models.KeycloakGroup
	err := c.paginate(ctx, "/groups", base, max, func(ctx context.Context, path string, q url.Values) (int, error) {
		var page []models.KeycloakGroup
		if err := c.get(ctx, path, q, &page); err != nil {
			return 0, err
		}
		groups = append(groups, flattenGroups(page)...)
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}
	if max > 0 && len(groups) > max {
		groups = groups[:max]
	}
	return groups, nil
}

// flattenGroups expands nested sub groups into a flat listing.
func flattenGroups(groups []models.KeycloakGroup) []models.KeycloakGroup {
	var flat []models.KeycloakGroup
	for _, g := range groups {
		sub := g.SubGroups
		g.SubGroups = nil
		flat = append(flat, g)
		flat = append(flat, flattenGroups(sub)...)
	}
	return flat
}

// GetGroupByID fetches a single group by id; a missing group is an empty
// result, not an error.
func (c *Client) GetGroupByID(ctx context.Context, id string) (*models.KeycloakGroup, error) {
	var group models.KeycloakGroup
	err := c.get(ctx, "/groups/"+url.PathEscape(id), nil, &group)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetGroupMembers lists the members of a group. An unknown group id yields
// an empty listing.
func (c *Client) GetGroupMembers(ctx context.Context, groupID string, max int) ([]models.KeycloakUser, error) {
	var members []models.KeycloakUser
	path := "/groups/" + url.PathEscape(groupID) + "/members"
	err := c.paginate(ctx, path, nil, max, func(ctx context.Context, path string, q url.Values) (int, error) {
		var page []models.KeycloakUser
		if err := c.get(ctx, path, q, &page); err != nil {
			return 0, err
		}
		members = append(members, page...)
		return len(page), nil
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if max > 0 && len(members) > max {
		members = members[:max]
	}
	return members, nil
}

// GetUserGroups lists the groups a user is a member of. An unknown user id
// yields an empty listing.
func (c *Client) GetUserGroups(ctx context.Context, userID string) ([]models.KeycloakGroup, error) {
	var groups []models.KeycloakGroup
	err := c.get(ctx, "/users/"+url.PathEscape(userID)+"/groups", nil, &groups)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// GetRealmRoles lists the realm-level roles.
func (c *Client) GetRealmRoles(ctx context.Context, max int) ([]models.KeycloakRole, error) {
	var roles []models.KeycloakRole
	err := c.paginate(ctx, "/roles", nil, max, func(ctx context.Context, path string, q url.Values) (int, error) {
		var page []models.KeycloakRole
		if err := c.get(ctx, path, q, &page); err != nil {
			return 0, err
		}
		roles = append(roles, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}
	if max > 0 && len(roles) > max {
		roles = roles[:max]
	}
	return roles, nil
}

// GetRoleByName fetches a realm role by its name; a missing role is an
// empty result, not an error.
func (c *Client) GetRoleByName(ctx context.Context, name string) (*models.KeycloakRole, error) {
	var role models.KeycloakRole
	err := c.get(ctx, "/roles/"+url.PathEscape(name), nil, &role)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRoleMembers lists the users holding a realm role. An unknown role
// yields an empty listing.
func (c *Client) GetRoleMembers(ctx context.Context, roleName string, max int) ([]models.KeycloakUser, error) {
	var members []models.KeycloakUser
	path := "/roles/" + url.PathEscape(roleName) + "/users"
	err := c.paginate(ctx, path, nil, max, func(ctx context.Context, path string, q url.Values) (int, error) {
		var page []models.KeycloakUser
		if err := c.get(ctx, path, q, &page); err != nil {
			return 0, err
		}
		members = append(members, page...)
		return len(page), nil
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if max > 0 && len(members) > max {
		members = members[:max]
	}
	return members, nil
}

// GetUserRealmRoles lists the realm roles mapped to a user.
func (c *Client) GetUserRealmRoles(ctx context.Context, userID string) ([]models.KeycloakRole, error) {
	var roles []models.KeycloakRole
	err := c.get(ctx, "/users/"+url.PathEscape(userID)+"/role-mappings/realm", nil, &roles)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// paginate walks a listing endpoint page by page until a short page or the
// max bound is reached.
func (c *Client) paginate(ctx context.Context, path string, base url.Values, max int, fetch func(ctx context.Context, path string, q url.Values) (int, error)) error {
	size := pageSize
	if max > 0 && max < size {
		size = max
	}
	fetched := 0
	for first := 0; ; first += size {
		q := url.Values{}
		for k, vs := range base {
			q[k] = vs
		}
		q.Set("first", strconv.Itoa(first))
		q.Set("max", strconv.Itoa(size))

		n, err := fetch(ctx, path, q)
		if err != nil {
			return err
		}
		fetched += n
		if n < size || (max > 0 && fetched >= max) {
			return nil
		}
	}
}

// get issues an authenticated GET against the admin API of the realm and
// decodes the JSON response into out. An unauthorized response triggers a
// single token refresh and retry.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, token, path, query)
	if err != nil {
		return &ServiceError{Op: "GET " + path, Err: err}
	}
	if status == http.StatusUnauthorized {
		token, err = c.refresh(ctx, token)
		if err != nil {
			return err
		}
		status, body, err = c.do(ctx, token, path, query)
		if err != nil {
			return &ServiceError{Op: "GET " + path, Err: err}
		}
		if status == http.StatusUnauthorized {
			return &AuthError{Status: status}
		}
	}

	switch {
	case status == http.StatusNotFound:
		return errNotFound
	case status != http.StatusOK:
		log.Debug().Int("status", status).Str("path", path).Msg("unexpected keycloak response")
		return &ServiceError{Op: "GET " + path, Status: status}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ServiceError{Op: "GET " + path, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, token, path string, query url.Values) (int, []byte, error) {
	u := fmt.Sprintf("%s/admin/realms/%s%s", c.BaseURL, c.Realm, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
