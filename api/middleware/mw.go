package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bpm-extensions/keycloak-identity/internal/authn"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// SessionMiddleware parses the session cookie issued at SSO login and adds
// its claims to the request context. Requests without a valid session are
// rejected.
func SessionMiddleware(secret []byte, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				logger := zerolog.Ctx(r.Context()).With().
					Str("handler", "SessionMiddleware").Logger()

				cookie, err := r.Cookie(cookieName)
				if err != nil {
					logger.Debug().Msg("session cookie missing")
					http.Error(w, "not logged in", http.StatusUnauthorized)
					return
				}

				claims, err := authn.ParseSession(secret, cookie.Value)
				if err != nil {
					logger.Error().Err(err).Msg("invalid session token")
					http.Error(w, "invalid session", http.StatusUnauthorized)
					return
				}

				ctx := context.WithValue(r.Context(), ClaimsKey, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
			},
		)
	}
}

// WithLogger adds a logger to the context and logs request information.
func WithLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			logger := log.With().
				Str("host", r.Host).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("remote_addr", r.RemoteAddr).
				Time("timestamp", time.Now()).
				Logger()

			// Add the logger to the context
			ctx := logger.WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}
