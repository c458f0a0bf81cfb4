package identity

import "context"

type authenticatedUserKey struct{}

// WithAuthenticatedUser returns a context carrying the engine user id of the
// currently authenticated caller. The host engine sets and clears it; the
// provider only reads it at query time.
func WithAuthenticatedUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, authenticatedUserKey{}, userID)
}

// AuthenticatedUser reports the authenticated engine user id carried by the
// context, if any.
func AuthenticatedUser(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(authenticatedUserKey{}).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}
