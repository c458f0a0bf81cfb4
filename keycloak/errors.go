package keycloak

import "fmt"

// AuthError reports that the admin client credentials were rejected by the
// token endpoint, or that a request stayed unauthorized after the token was
// refreshed once.
type AuthError struct {
	Status      int
	Description string
}

func (e *AuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("keycloak authentication failed, status: %d", e.Status)
	}
	return fmt.Sprintf("keycloak authentication failed, status: %d: %s", e.Status, e.Description)
}

// ServiceError reports a failed call against the Keycloak REST API: a
// network failure or an unexpected response status. It is fatal for the
// call; the caller decides whether to retry the whole operation.
type ServiceError struct {
	Op     string
	Status int
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keycloak %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("keycloak %s failed, status: %d", e.Op, e.Status)
}

func (e *ServiceError) Unwrap() error { return e.Err }
