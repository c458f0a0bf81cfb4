package models

// KeycloakUser mirrors the user representation returned by the Keycloak
// admin REST API. Optional fields stay empty when the realm does not carry
// them; downstream filters treat empty as absent.
type KeycloakUser struct {
	ID         string              `json:"id"`
	Username   string              `json:"username"`
	FirstName  string              `json:"firstName,omitempty"`
	LastName   string              `json:"lastName,omitempty"`
	Email      string              `json:"email,omitempty"`
	Enabled    bool                `json:"enabled"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// KeycloakGroup mirrors the group representation of the admin REST API.
type KeycloakGroup struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Path      string          `json:"path,omitempty"`
	SubGroups []KeycloakGroup `json:"subGroups,omitempty"`
}

// KeycloakRole mirrors a realm role representation.
type KeycloakRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
