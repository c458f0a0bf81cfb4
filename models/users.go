package models

// User is the engine-facing identity record for a directory user. It is an
// immutable snapshot built from a Keycloak response; the ID is either the
// Keycloak internal id or, with useUsernameAsId enabled, the username.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Group is the engine-facing record for a Keycloak group or realm role.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Group types recording how a group was derived from the realm.
const (
	GroupTypeOrganization = "organization"
	GroupTypeRole         = "role"
	GroupTypeSystem       = "system"
)
